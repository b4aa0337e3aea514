package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gonkalabs/piiscan/internal/api"
	"github.com/gonkalabs/piiscan/internal/config"
	"github.com/gonkalabs/piiscan/internal/observability"
	"github.com/gonkalabs/piiscan/internal/responder"
	"github.com/gonkalabs/piiscan/internal/sanitize"
	"github.com/gonkalabs/piiscan/internal/sanitize/llmclassifier"
	"github.com/gonkalabs/piiscan/internal/sanitize/ner"
	"github.com/gonkalabs/piiscan/internal/signer"
	"github.com/gonkalabs/piiscan/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.ListenAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

// engines returns the full engine, which runs every configured person
// extractor, and the local engine, which runs only the built-in heuristic.
func engines(cfg *config.Cfg) (full, local *sanitize.Engine, err error) {
	patterns, err := sanitize.LoadPatterns(cfg.PatternFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading patterns: %w", err)
	}
	names := sanitize.DefaultNameTable()

	classifiers := []sanitize.Classifier{sanitize.NewHeuristicClassifier(names)}
	if cfg.NERURL != "" {
		classifiers = append(classifiers, ner.New(cfg.NERURL))
		log.Info().Str("url", cfg.NERURL).Msg("sanitize: NER extractor enabled")
	}
	if cfg.LLMURL != "" {
		classifiers = append(classifiers, llmclassifier.New(cfg.LLMURL, cfg.LLMModel, cfg.LLMAPIKey))
		log.Info().Str("url", cfg.LLMURL).Str("model", cfg.LLMModel).Msg("sanitize: LLM extractor enabled")
	}

	full, err = sanitize.NewEngine(
		sanitize.WithPatterns(patterns),
		sanitize.WithNameTable(names),
		sanitize.WithClassifiers(classifiers...),
		sanitize.WithClassifierBudget(cfg.ClassifierTimeout),
	)
	if err != nil {
		return nil, nil, err
	}
	local, err = sanitize.NewEngine(
		sanitize.WithPatterns(patterns),
		sanitize.WithNameTable(names),
	)
	if err != nil {
		return nil, nil, err
	}
	return full, local, nil
}

func newResponder(cfg *config.Cfg) responder.Responder {
	canned := responder.NewCanned()
	if cfg.Responder == config.ResponderOpenAI {
		return responder.NewOpenAI(cfg.ResponderURL, cfg.ResponderModel, cfg.ResponderAPIKey, canned)
	}
	return canned
}

// storeScheme hides credentials in store URLs for logging.
func storeScheme(raw string) string {
	if raw == "" {
		return "memory"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "unknown"
	}
	return u.Scheme
}

func runServe(ctx context.Context, cfg *config.Cfg) error {
	full, local, err := engines(cfg)
	if err != nil {
		return err
	}

	st, err := store.NewStore(ctx, cfg.StoreURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	sig, err := signer.New(cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	if cfg.UsingEphemeralKey() {
		log.Warn().Str("signer", sig.Address()).Msg("no signing_key set, run logs are signed with an ephemeral key")
	}

	resp := newResponder(cfg)
	h := api.New(api.Options{
		Engine:        full,
		LocalEngine:   local,
		Store:         st,
		Responder:     resp,
		Signer:        sig,
		Metrics:       observability.NewMetrics(serviceName),
		StoreRawInput: cfg.StoreRawInput,
		MaxInputChars: cfg.MaxInputChars,
		RateLimitRPM:  cfg.RateLimitRPM,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      h.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("store", storeScheme(cfg.StoreURL)).
		Strs("extractors", full.Status().PersonExtractors).
		Str("responder", cfg.Responder).
		Str("signer", sig.Address()).
		Msg("piiscan: listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("piiscan: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("piiscan: shutdown error")
		return err
	}
	return nil
}
