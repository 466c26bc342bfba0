package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"eventpay/internal/client"
	"eventpay/internal/models"
	"eventpay/internal/presenter"
	"eventpay/internal/tracker"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PAYTRACK")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "paytrack",
		Short:         "Initiate and follow event booking payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("server", "http://localhost:8080", "payment backend base URL")
	root.PersistentFlags().String("api-key", "", "admin API key, exchanged for a session token")
	root.PersistentFlags().Bool("verbose", false, "log requests")
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("api_key", root.PersistentFlags().Lookup("api-key"))
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newInitiateCmd(v), newTrackCmd(v), newStatusCmd(v))
	return root
}

func newLogger(v *viper.Viper) *zap.Logger {
	if !v.GetBool("verbose") {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// apiClient builds a client and, when an API key is configured, a session for it.
func apiClient(ctx context.Context, v *viper.Viper) (*client.Client, error) {
	server := v.GetString("server")
	key := v.GetString("api_key")
	if key == "" {
		return client.New(server), nil
	}
	sess, err := client.New(server).Login(ctx, key)
	if err != nil {
		return nil, err
	}
	return client.New(server, client.WithSessionToken(sess.Token)), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type stderrToast struct{ w io.Writer }

func (t stderrToast) Error(msg string) { fmt.Fprintln(t.w, "error:", msg) }

func newInitiateCmd(v *viper.Viper) *cobra.Command {
	var req models.InitiateRequest
	var rupees string

	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Open a payment for a booking and print the gateway URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := presenter.ParseRupees(rupees)
			if err != nil {
				return err
			}
			req.Amount = amount

			ctx, cancel := signalContext()
			defer cancel()

			in := client.NewInitiator(client.New(v.GetString("server")), stderrToast{cmd.ErrOrStderr()}, newLogger(v))
			res, err := in.Start(ctx, req, client.RedirectFunc(func(paymentURL string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), paymentURL)
				return err
			}))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "payment %d (pidx %s) for %s\n",
				res.PaymentID, res.Pidx, presenter.FormatAmount(req.Amount))
			return nil
		},
	}
	cmd.Flags().UintVar(&req.BookingID, "booking", 0, "booking id")
	cmd.Flags().StringVar(&rupees, "amount", "", "amount in NPR, e.g. 2500 or 2500.50")
	cmd.Flags().StringVar(&req.ProductName, "product", "Event booking", "product name shown on the gateway")
	cmd.Flags().StringVar(&req.CustomerInfo.Name, "name", "", "customer name")
	cmd.Flags().StringVar(&req.CustomerInfo.Email, "email", "", "customer email")
	cmd.Flags().StringVar(&req.CustomerInfo.Phone, "phone", "", "customer phone")
	_ = cmd.MarkFlagRequired("booking")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status <payment-id|pidx>",
		Short: "Print the current status of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			api, err := apiClient(ctx, v)
			if err != nil {
				return err
			}
			view, err := api.Status(ctx, args[0])
			if err != nil {
				return err
			}
			printCard(cmd.OutOrStdout(), *view)
			return nil
		},
	}
}

func newTrackCmd(v *viper.Viper) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "track <payment-id|pidx>",
		Short: "Poll a payment until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			api, err := apiClient(ctx, v)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tr := tracker.New(api, args[0],
				tracker.WithInterval(interval),
				tracker.WithLogger(newLogger(v)),
				tracker.WithSourceName("cli"),
				tracker.WithOnStatusChange(func(s models.Status) {
					b := presenter.Badge(string(s))
					fmt.Fprintf(out, "%s %s  %s\n", time.Now().Format("15:04:05"), b.Emoji, b.Label)
				}),
			)
			defer tr.Close()

			tr.Enable()
			select {
			case <-tr.Settled():
			case <-ctx.Done():
				return ctx.Err()
			}
			tr.Close()

			if view, ok := tr.Latest(); ok {
				printCard(out, *view)
				if view.Status == models.StatusFailed {
					return fmt.Errorf("payment %s failed", args[0])
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", tracker.DefaultInterval, "polling interval")
	return cmd
}

func printCard(w io.Writer, view models.PaymentView) {
	card := presenter.View(view, nil)
	fmt.Fprintf(w, "Payment #%d  %s %s\n", view.ID, card.Badge.Emoji, card.Badge.Label)
	fmt.Fprintf(w, "  Booking:  %d\n", view.BookingID)
	fmt.Fprintf(w, "  Amount:   %s\n", card.Amount)
	if view.Pidx != "" {
		fmt.Fprintf(w, "  Pidx:     %s\n", view.Pidx)
	}
	fmt.Fprintf(w, "  Customer: %s\n", card.Customer)
	fmt.Fprintf(w, "  Created:  %s\n", card.CreatedAt)
	fmt.Fprintf(w, "  Updated:  %s\n", card.UpdatedAt)
}
