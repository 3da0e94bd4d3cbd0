package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/interviewprep/interviewprep/internal/auth"
	"github.com/interviewprep/interviewprep/internal/billing"
	"github.com/interviewprep/interviewprep/internal/entitlement"
	"github.com/interviewprep/interviewprep/internal/handler"
	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/llm"
	"github.com/interviewprep/interviewprep/internal/llm/prompts"
	"github.com/interviewprep/interviewprep/internal/metrics"
	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/questions"
	"github.com/interviewprep/interviewprep/internal/store"
	"github.com/interviewprep/interviewprep/internal/store/mongostore"
)

func main() {
	// A missing .env file is fine; real environments set variables directly.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewprep",
		Short: "Mock interview practice with AI transcription and feedback",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), practiceCmd(), tokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `interviewprep --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", "sqlite", "Storage backend (sqlite, mongo)")
	f.String("db", "interviewprep.db", "SQLite database path")
	f.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	f.String("mongo-db", "interviewprep", "MongoDB database name")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Extra question seed files, JSON or YAML (repeatable)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM provider (or set INTERVIEWPREP_LLM_KEY)")
	f.String("llm-model", "gpt-4o-mini", "Chat model used for feedback")
	f.String("transcribe-model", "whisper-1", "Speech-to-text model")
	f.String("prompt-variant", string(prompts.PromptStandard), "Feedback prompt variant (strict, standard, lenient)")
	f.String("stripe-key", "", "Stripe secret key")
	f.String("stripe-webhook-secret", "", "Stripe webhook signing secret")
	f.String("stripe-price-id", "", "Stripe price for the yearly plan")
	f.String("app-url", "http://localhost:5173", "Public app URL for checkout redirects")
	f.String("auth-mode", "firebase", "ID token verification (firebase, hmac)")
	f.String("firebase-project-id", "", "Firebase project whose ID tokens are accepted")
	f.String("auth-secret", "", "HS256 signing secret for auth-mode=hmac")
	f.StringSlice("admin-uids", nil, "UIDs granted admin access (repeatable)")
	f.Int("usage-ceiling", entitlement.DefaultUsageCeiling, "Lifetime transcriptions per user (0 = unlimited)")
	f.Duration("trial-length", entitlement.DefaultTrialLength, "Free trial granted at first sign-in")
	f.Duration("subscription-length", entitlement.PaidPeriod, "Access granted per completed payment")
	f.StringP("lang", "l", "en", "Default language for messages (en, es)")
	f.Bool("metrics", true, "Expose Prometheus metrics at /metrics")
	f.Bool("llm-check", true, "Check the LLM endpoint at startup")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's saved sessions as JSON",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.String("uid", "", "User whose sessions are exported (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("uid")

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development ID token for auth-mode=hmac",
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("auth-secret", "", "HS256 signing secret (must match the server)")
	f.String("uid", "", "Subject of the token (required)")
	f.String("email", "", "Email claim")
	f.Bool("admin", false, "Set the admin claim")
	f.Duration("ttl", 24*time.Hour, "Token lifetime")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("uid")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("interviewprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewprep")
	v.AddConfigPath("/etc/interviewprep")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openRepository(ctx context.Context, v *viper.Viper) (store.Repository, error) {
	switch driver := strings.ToLower(v.GetString("db-driver")); driver {
	case "", "sqlite":
		return store.New(v.GetString("db"))
	case "mongo", "mongodb":
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongostore.New(ctx, v.GetString("mongo-uri"), v.GetString("mongo-db"))
	default:
		return nil, fmt.Errorf("unknown db-driver %q", driver)
	}
}

// newVerifier builds the ID token verifier. Missing configuration is an
// error rather than an open door.
func newVerifier(v *viper.Viper) (auth.Verifier, error) {
	admins := v.GetStringSlice("admin-uids")
	switch mode := strings.ToLower(v.GetString("auth-mode")); mode {
	case "firebase":
		project := v.GetString("firebase-project-id")
		if project == "" {
			return nil, errors.New("firebase-project-id is required for auth-mode=firebase")
		}
		return auth.NewFirebaseVerifier(project, admins), nil
	case "hmac":
		secret := v.GetString("auth-secret")
		if len(secret) < 16 {
			return nil, errors.New("auth-secret of at least 16 bytes is required for auth-mode=hmac")
		}
		return auth.NewHMACVerifier(secret, "", admins), nil
	default:
		return nil, fmt.Errorf("unknown auth-mode %q", mode)
	}
}

func requireSettings(v *viper.Viper, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := requireSettings(v, "llm-key", "stripe-key", "stripe-webhook-secret", "stripe-price-id"); err != nil {
		return err
	}
	verifier, err := newVerifier(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	// Seed the bank on first run, then import any extra files.
	if err := questions.LoadDefault(ctx, repo); err != nil {
		return fmt.Errorf("load default questions: %w", err)
	}
	if err := questions.Load(ctx, repo, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetString("transcribe-model"),
		prompts.PromptVariant(promptVariant),
	)
	if v.GetBool("llm-check") {
		pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := llmClient.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	checkout := billing.NewCheckout(v.GetString("stripe-key"), v.GetString("stripe-price-id"), v.GetString("app-url"))

	h, err := handler.New(repo, verifier, llmClient, checkout, handler.Config{
		UsageCeiling:       v.GetInt("usage-ceiling"),
		TrialLength:        v.GetDuration("trial-length"),
		SubscriptionLength: v.GetDuration("subscription-length"),
		WebhookSecret:      v.GetString("stripe-webhook-secret"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)
	if v.GetBool("metrics") {
		r.Handle("/metrics", metrics.Handler())
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"auth_mode", v.GetString("auth-mode"),
		"model", v.GetString("llm-model"),
		"transcribe_model", v.GetString("transcribe-model"),
		"prompt_variant", promptVariant,
		"usage_ceiling", v.GetInt("usage-ceiling"),
		"lang", lang,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := openRepository(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	export, err := store.Export(ctx, repo, v.GetString("uid"), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	return writeJSONOutput(v.GetString("output"), export)
}

func writeJSONOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("auth-secret")
	if len(secret) < 16 {
		return errors.New("auth-secret of at least 16 bytes is required")
	}
	signer := auth.NewHMACVerifier(secret, "", nil)
	token, err := signer.Sign(model.Identity{
		UID:           v.GetString("uid"),
		Email:         v.GetString("email"),
		EmailVerified: v.GetString("email") != "",
		Admin:         v.GetBool("admin"),
	}, v.GetDuration("ttl"), time.Now())
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
