package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/cowhealth/internal/application"
	appai "github.com/bryanwahyu/cowhealth/internal/application/ai"
	appanalysis "github.com/bryanwahyu/cowhealth/internal/application/analysis"
	apphistory "github.com/bryanwahyu/cowhealth/internal/application/history"
	"github.com/bryanwahyu/cowhealth/internal/config"
	domai "github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/provider"
	"github.com/bryanwahyu/cowhealth/internal/infra/db"
	"github.com/bryanwahyu/cowhealth/internal/infra/image"
	"github.com/bryanwahyu/cowhealth/internal/logging"
)

// Analyzer is the part of the pipeline the CLI drives.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	SuggestTreatment(ctx context.Context, disease string) (analysis.TreatmentAdvice, error)
	ListConditionsAndTreatments(ctx context.Context, disease string) ([]analysis.ConditionTreatment, error)
}

// Summarizer condenses analysis history.
type Summarizer interface {
	SummarizeText(ctx context.Context, text string) (string, error)
	SummarizeRecent(ctx context.Context, limit int) (string, error)
}

// services is what a command needs once config is loaded.
type services struct {
	analyzer   Analyzer
	summarizer Summarizer
	intake     *image.Intake
	close      func()
}

type deps struct {
	build func(ctx context.Context, configPath string, verbose bool) (*services, error)
}

func defaultDeps() deps {
	return deps{build: buildServices}
}

func buildServices(ctx context.Context, configPath string, verbose bool) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	// logs go to stderr; stdout carries the JSON answer
	logger, err := logging.New(level, "console")
	if err != nil {
		return nil, err
	}

	model, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	caller := appai.NewCaller(model, logger.Named("ai"))

	repo, conn, err := db.OpenHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	hist := &apphistory.Service{
		Repo:   repo,
		Caller: caller,
		Clock:  application.SystemClock{},
		Log:    logger.Named("history"),
	}
	return &services{
		analyzer:   appanalysis.NewPipeline(caller, logger.Named("pipeline")),
		summarizer: hist,
		intake:     image.NewIntake(cfg.Image.MaxBytes, cfg.Image.AllowedFormats, logger.Named("image")),
		close: func() {
			if conn != nil {
				conn.Close()
			}
			_ = logger.Sync()
		},
	}, nil
}

func newRootCmd(d deps) *cobra.Command {
	var (
		configPath string
		verbose    bool
		timeout    time.Duration
		svc        *services
	)

	root := &cobra.Command{
		Use:           "cowctl",
		Short:         "Analyze cow photos and look up treatments from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if v := os.Getenv("CONFIG_PATH"); v != "" && !cmd.Flags().Changed("config") {
				configPath = v
			}
			var err error
			svc, err = d.build(cmd.Context(), configPath, verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if svc != nil && svc.close != nil {
				svc.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall deadline for one command")

	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	var imageRef, promptText string
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a cow image (file path, http(s) URL or data URL)",
		Example: `  cowctl analyze --image ./cow.jpg --prompt "Does this cow look sick?"
  cowctl analyze --image https://example.com/cow.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadImage(svc.intake, imageRef)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			res, err := svc.analyzer.AnalyzeImage(ctx, analysis.Request{Image: img, Instruction: promptText})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	analyzeCmd.Flags().StringVar(&imageRef, "image", "", "image file path or URL")
	analyzeCmd.Flags().StringVar(&promptText, "prompt", "Analyze this cow.", "instruction sent with the image")
	_ = analyzeCmd.MarkFlagRequired("image")

	treatCmd := &cobra.Command{
		Use:   "treat [disease]",
		Short: "Suggest treatments for a disease description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			advice, err := svc.analyzer.SuggestTreatment(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), advice)
		},
	}

	conditionsCmd := &cobra.Command{
		Use:   "conditions [disease]",
		Short: "List plausible conditions with medicines and reference links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			list, err := svc.analyzer.ListConditionsAndTreatments(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	var (
		historyFile string
		recent      int
	)
	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize an analysis history file (- for stdin) or the stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			var (
				summary string
				err     error
			)
			if historyFile != "" {
				text, rerr := readText(cmd.InOrStdin(), historyFile)
				if rerr != nil {
					return rerr
				}
				summary, err = svc.summarizer.SummarizeText(ctx, text)
			} else {
				summary, err = svc.summarizer.SummarizeRecent(ctx, recent)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"summary": summary})
		},
	}
	summarizeCmd.Flags().StringVar(&historyFile, "file", "", "history text file, - for stdin")
	summarizeCmd.Flags().IntVar(&recent, "recent", 20, "number of stored analyses to summarize when --file is not set")

	root.AddCommand(analyzeCmd, treatCmd, conditionsCmd, summarizeCmd)
	return root
}

func loadImage(in *image.Intake, ref string) (domai.Image, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return in.FromURI(ref)
	}
	raw, err := os.ReadFile(ref)
	if err != nil {
		return domai.Image{}, fmt.Errorf("read image: %w", err)
	}
	return in.FromBytes(raw)
}

func readText(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read history: %w", err)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
