package zds

import (
	"net/url"
	"strings"
)

// IndexBy maps objects on the string value of key, usually "url". Objects
// without that key are skipped.
func IndexBy(objects []Object, key string) map[string]Object {
	index := make(map[string]Object, len(objects))

	for _, object := range objects {
		if value := object.String(key); value != "" {
			index[value] = object
		}
	}

	return index
}

// UUIDFromURL returns the last path segment of a resource URL.
func UUIDFromURL(resourceURL string) string {
	parsed, err := url.Parse(resourceURL)
	if err != nil {
		return ""
	}

	path := strings.TrimSuffix(parsed.Path, "/")

	return path[strings.LastIndex(path, "/")+1:]
}
