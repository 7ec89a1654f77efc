package notify

import (
	"strings"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// Message is what a subscriber is shown. Title and Body may contain
// <strong> markup.
type Message struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
	URL       string `json:"url"`
}

// Envelope is a message together with the topic it was published on.
type Envelope struct {
	Topic   string  `json:"topic"`
	Message Message `json:"message"`
}

// TopicFor returns the topic of one user. An empty username is everyone.
func TopicFor(username string) string {
	if username == "" {
		return constants.DefaultNotificationTopic
	}

	return "notifications_" + username
}

// titleCase upper-cases the first letter of every word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}
