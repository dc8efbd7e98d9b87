package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"orderbot-client/internal/config"
	"orderbot-client/internal/domain"
	"orderbot-client/internal/integrations/paramstore"
	"orderbot-client/internal/metrics"
	"orderbot-client/internal/orderbot"
	"orderbot-client/internal/retry"
	"orderbot-client/internal/session"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ---- Endpoint from SSM, when a prefix is configured ----
	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		if err := cfg.ApplyEndpoint(ctx, ps); err != nil {
			slog.Error("failed to resolve endpoint", "prefix", cfg.ParamPrefix, "err", err)
			os.Exit(1)
		}
	}

	// ---- Metrics ----
	m := metrics.New(prometheus.NewRegistry())
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, m)
	}

	// ---- Clients ----
	client, err := orderbot.NewClient(
		orderbot.WithBaseURL(cfg.BaseURL),
		orderbot.WithToken(cfg.Token),
		orderbot.WithPolicy(cfg.Policy()),
		orderbot.WithLogger(logger),
		orderbot.WithObserver(func(e retry.Event) {
			m.RecordRetry(e)
			fmt.Fprintf(os.Stderr, "retrying (attempt %d in %s)\n", e.Attempt, e.Delay)
		}),
	)
	if err != nil {
		slog.Error("failed to create order bot client", "err", err)
		os.Exit(1)
	}

	sess, err := session.New(m.Instrument(client), logger)
	if err != nil {
		slog.Error("failed to create session", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, sess, os.Stdin, os.Stdout); err != nil {
		slog.Error("chat ended with error", "err", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "addr", addr, "err", err)
	}
}

const help = `commands:
  <text>            send a message
  /image <path>     send a photo
  /voice <path>     send a voice recording
  /buy <n>          pick product n from the last reply
  /qty <n>          answer a quantity prompt
  /address <text>   answer an address prompt
  /order            place the order
  /new              start a new conversation
  /quit             exit`

// run reads one command per line until EOF or /quit.
func run(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, session.Greeting)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		handleLine(ctx, sess, line, out)
	}
}

func handleLine(ctx context.Context, sess *session.Session, line string, out io.Writer) {
	cmd, arg := line, ""
	if strings.HasPrefix(line, "/") {
		if i := strings.IndexByte(line, ' '); i >= 0 {
			cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
		}
	} else {
		cmd, arg = "", line
	}

	var (
		reply session.Reply
		err   error
	)
	switch cmd {
	case "":
		reply, err = sess.SendText(ctx, arg)
	case "/image":
		reply, err = sess.Send(ctx, orderbot.Image{Source: orderbot.FileSource(arg)})
	case "/voice":
		reply, err = sess.Send(ctx, orderbot.Audio{Source: orderbot.FileSource(arg)})
	case "/buy":
		products := sess.Products()
		n, convErr := strconv.Atoi(arg)
		if convErr != nil || n < 1 || n > len(products) {
			fmt.Fprintf(out, "pick a product between 1 and %d\n", len(products))
			return
		}
		if sess.AwaitingQuantity() {
			fmt.Fprintf(out, "how many %s? answer with /qty <n>\n", products[n-1].Name)
			return
		}
		reply, err = sess.SelectProduct(ctx, products[n-1])
	case "/qty":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil {
			fmt.Fprintln(out, "quantity must be a number")
			return
		}
		reply, err = sess.ConfirmQuantity(ctx, n)
	case "/address":
		reply, err = sess.ConfirmAddress(ctx, arg)
	case "/order":
		reply, err = sess.PlaceOrder(ctx)
	case "/new":
		sess.Reset()
		fmt.Fprintln(out, session.Greeting)
		return
	default:
		fmt.Fprintln(out, help)
		return
	}

	if err != nil {
		slog.Debug("send failed", "err", err)
		fmt.Fprintln(out, session.UserMessage(err))
		return
	}
	printReply(out, reply)
}

func printReply(out io.Writer, reply session.Reply) {
	fmt.Fprintln(out, reply.Text)
	a := reply.Response.Assistant
	for i, p := range a.Products {
		fmt.Fprintf(out, "  %d. %s\n", i+1, describeProduct(p))
	}
	if a.Product != nil && len(a.Products) == 0 {
		fmt.Fprintf(out, "  1. %s\n", describeProduct(*a.Product))
	}
	if a.Total != "" {
		fmt.Fprintf(out, "  total: %s\n", a.Total)
	}
	if a.Address != "" {
		fmt.Fprintf(out, "  deliver to: %s\n", a.Address)
	}
}

func describeProduct(p domain.Product) string {
	parts := []string{p.Name}
	if p.QuantityOrWeight != "" {
		parts = append(parts, p.QuantityOrWeight)
	}
	if p.Price != "" {
		parts = append(parts, p.Price)
	}
	return strings.Join(parts, " - ")
}
