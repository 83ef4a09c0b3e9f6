package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/interviewer/internal/handler"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

const janitorInterval = 5 * time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewer",
		Short: "Interview practice backend powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `interviewer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":3000", "HTTP listen address")
	addLLMFlags(f)
	addInterviewFlags(f)
	f.StringP("lang", "l", "en", "Default language for error messages (en, ru)")
	f.String("static-dir", "public", "Directory with static assets (empty to disable)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /interview)")
	f.String("session-secret", "", "HMAC secret for session tokens (random if empty)")
	f.Duration("session-ttl", 24*time.Hour, "Idle time after which a session is dropped")
	f.Bool("secure-cookies", false, "Set Secure flag on session cookies")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable; empty disables CORS)")
	f.Duration("request-timeout", 60*time.Second, "Upper bound for a single HTTP request")
	f.Bool("llm-ping", true, "Check the LLM endpoint at startup")
	addLogFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one batch of questions and print them with their answers",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("skill", "s", "", "Skill to generate questions for (default: --default-skill)")
	f.StringP("lang", "l", "en", "Language for the summary line (en, ru)")
	addLLMFlags(f)
	addInterviewFlags(f)
	addLogFlags(f)
	return cmd
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", string(llm.ProviderGemini), "LLM API flavour (gemini, openai)")
	f.String("llm-url", "", "LLM API base URL (empty for the provider's public endpoint)")
	f.String("llm-key", "", "API key for the LLM (or set AI_API_KEY)")
	f.String("llm-model", "gemini-1.5-pro", "LLM model name")
	f.Float32("llm-temperature", 0.3, "Sampling temperature (0 for the provider default)")
	f.Duration("llm-timeout", 30*time.Second, "Upper bound for a single LLM call")
}

func addInterviewFlags(f *pflag.FlagSet) {
	f.IntP("num-questions", "n", 5, "Number of questions requested per generation")
	f.String("default-skill", "General", "Skill used when the request does not name one")
	f.Bool("fresh-session", false, "Replace the session's questions on every generation instead of appending")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm-key", "INTERVIEWER_LLM_KEY", "AI_API_KEY")

	v.SetConfigName("interviewer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewer")
	v.AddConfigPath("/etc/interviewer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func llmConfig(v *viper.Viper) llm.Config {
	return llm.Config{
		Provider:    llm.Provider(strings.ToLower(strings.TrimSpace(v.GetString("llm-provider")))),
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       v.GetString("llm-model"),
		Temperature: float32(v.GetFloat64("llm-temperature")),
	}
}

func interviewConfig(v *viper.Viper) model.InterviewConfig {
	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	return model.InterviewConfig{
		NumQuestions:  v.GetInt("num-questions"),
		DefaultSkill:  v.GetString("default-skill"),
		FreshSession:  v.GetBool("fresh-session"),
		PromptVariant: promptVariant,
		LLMTimeout:    v.GetDuration("llm-timeout"),
	}
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Sessions live only as long as the process.
	db, err := store.New("")
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	if err := prompts.Load(prompts.FS); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmCfg := llmConfig(v)
	llmClient, err := llm.New(llmCfg)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if v.GetBool("llm-ping") {
		ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("llm-timeout"))
		err := llmClient.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", llmCfg.Provider, "model", llmCfg.Model)
	}

	interviewCfg := interviewConfig(v)
	svc := interview.New(db, llmClient, interviewCfg)

	basePath := normalizeBasePath(v.GetString("base-path"))
	serverCfg := model.ServerConfig{
		BasePath:      basePath,
		StaticDir:     v.GetString("static-dir"),
		SessionSecret: v.GetString("session-secret"),
		SessionTTL:    v.GetDuration("session-ttl"),
		SecureCookies: v.GetBool("secure-cookies"),
	}
	if serverCfg.SessionSecret == "" {
		slog.Warn("no session-secret configured, sessions will not survive a restart")
	}

	h, err := handler.New(svc, serverCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(v.GetDuration("request-timeout")))
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Accept-Language", "X-Session-Token"},
			ExposedHeaders:   []string{"X-Session-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runJanitor(ctx, db, serverCfg.SessionTTL)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"provider", llmCfg.Provider,
		"model", llmCfg.Model,
		"lang", lang,
		"num_questions", interviewCfg.NumQuestions,
		"fresh_session", interviewCfg.FreshSession,
		"prompt_variant", interviewCfg.PromptVariant,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

// runJanitor drops sessions idle for longer than ttl until ctx is done.
func runJanitor(ctx context.Context, db *store.Store, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := db.DeleteIdleSessions(ctx, now.Add(-ttl))
			if err != nil {
				slog.Error("failed to drop idle sessions", "error", err)
				continue
			}
			if n > 0 {
				remaining, _ := db.SessionCount(ctx)
				slog.Info("dropped idle sessions", "count", n, "remaining", remaining)
			}
		}
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New("")
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	if err := prompts.Load(prompts.FS); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := llm.New(llmConfig(v))
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	interviewCfg := interviewConfig(v)
	svc := interview.New(db, llmClient, interviewCfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID := uuid.New().String()
	skill := v.GetString("skill")
	if _, err := svc.Generate(ctx, sessionID, skill); err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}

	records, err := db.ListRecords(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if strings.TrimSpace(skill) == "" {
		skill = interviewCfg.DefaultSkill
	}
	fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Tp(ctx, "QuestionsGenerated", len(records), map[string]any{"Skill": skill}))
	return nil
}
