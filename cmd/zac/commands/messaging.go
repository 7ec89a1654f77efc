package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/messaging"
)

// NewEmitCommand creates the emit command
func NewEmitCommand() *cobra.Command {
	var (
		routingKey string
		exchange   string
	)

	cmd := &cobra.Command{
		Use:     "emit MESSAGE...",
		Short:   "Publish a test notification on the broker",
		Example: `  zac emit --kenmerk foo.bar --kanaal zaken "Hello World!"`,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return constants.ErrMessageRequired
			}

			bus, settings, err := connectBus()
			if err != nil {
				return err
			}
			defer bus.Close()

			if exchange == "" {
				exchange = settings.Exchange
			}

			return emit(bus, exchange, routingKey, strings.Join(args, " "), cmd.OutOrStdout(), time.Now)
		},
	}

	cmd.Flags().StringVarP(&routingKey, "kenmerk", "k", constants.DefaultRoutingKey, "routing key of the message")
	cmd.Flags().StringVar(&exchange, "kanaal", "", "channel to publish on (default from messaging.exchange)")

	return cmd
}

// NewConsumeCommand creates the consume command
func NewConsumeCommand() *cobra.Command {
	var exchange string

	cmd := &cobra.Command{
		Use:   "consume [FILTER...]",
		Short: "Print notifications received from the broker",
		Long: `Listen on a channel and print every message whose routing key matches
one of the filters. Filters use topic wildcards: * matches one word and #
matches zero or more words. Without filters every message is printed.`,
		Example: `  zac consume "foo.*" "zaak.#"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, settings, err := connectBus()
			if err != nil {
				return err
			}
			defer bus.Close()

			if exchange == "" {
				exchange = settings.Exchange
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return consume(ctx, bus, exchange, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&exchange, "kanaal", "", "channel to listen on (default from messaging.exchange)")

	return cmd
}

// connectBus opens the broker configured under messaging.
func connectBus() (*messaging.NATSBus, config.MessagingSettings, error) {
	settings, _, err := loadSettings()
	if err != nil {
		return nil, config.MessagingSettings{}, err
	}

	if settings.Messaging.URL == "" {
		return nil, settings.Messaging, constants.ErrBrokerUnavailable
	}

	bus, err := messaging.Connect(settings.Messaging.URL)
	if err != nil {
		return nil, settings.Messaging, err
	}

	return bus, settings.Messaging, nil
}

func emit(bus messaging.Bus, exchange, routingKey, message string, out io.Writer, now func() time.Time) error {
	body := []byte(message)

	err := messaging.Emit(bus, exchange, routingKey, body)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, messaging.FormatSent(now(), routingKey, body))

	return err
}

func consume(ctx context.Context, bus messaging.Bus, exchange string, filters []string, out io.Writer) error {
	consumer := messaging.NewConsumer(bus, exchange, filters...)

	fmt.Fprintf(out, "Wachten op berichten op %q met filters %s. Stop met CTRL+C.\n",
		exchange, strings.Join(consumer.Filters(), ", "))

	return consumer.Run(ctx, func(delivery messaging.Delivery) {
		fmt.Fprintln(out, messaging.FormatReceived(delivery))
	})
}
