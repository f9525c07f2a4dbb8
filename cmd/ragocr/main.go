package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/thehoang-x-five/Rag-OCR/internal/ai"
	"github.com/thehoang-x-five/Rag-OCR/internal/config"
	"github.com/thehoang-x-five/Rag-OCR/internal/enhance"
	"github.com/thehoang-x-five/Rag-OCR/internal/httpapi"
	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

const version = "0.1.0"

type cli struct {
	Config string `help:"Path to config file." default:"ragocr.json"`
	Debug  bool   `help:"Enable debug logging."`

	Serve      serveCmd      `cmd:"" default:"1" help:"Run the HTTP enhancement API."`
	Enhance    enhanceCmd    `cmd:"" help:"Enhance OCR text from a file or stdin."`
	Providers  providersCmd  `cmd:"" help:"Show resolved provider configuration."`
	InitConfig initConfigCmd `cmd:"" name:"init-config" help:"Write a starter config file."`
	Version    versionCmd    `cmd:"" help:"Print version."`
}

// app carries the constructed core into command Run methods.
type app struct {
	cfg          *config.Config
	manager      *ai.Manager
	orchestrator *enhance.Orchestrator
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("ragocr"),
		kong.Description("Multi-provider AI enhancement for OCR text."),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if c.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level})

	err := kctx.Run(&c)
	kctx.FatalIfErrorf(err)
}

// buildApp loads config and wires registry, manager, and orchestrator.
func buildApp(c *cli) (*app, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}

	if !c.Debug {
		SetLevel(parseLevel(cfg.Log.Level))
	}

	providerConfigs, err := cfg.ResolveProviders()
	if err != nil {
		return nil, err
	}

	registry, err := ai.NewRegistryFromConfigs(providerConfigs)
	if err != nil {
		return nil, err
	}

	manager := ai.NewManager(registry, ai.ManagerConfig{})

	orchestrator, err := enhance.NewOrchestrator(manager, enhance.Config{
		Enabled:                cfg.Enhancement.IsEnabled(),
		UseVisionWhenAvailable: cfg.Enhancement.VisionPreferred(),
		TargetLanguage:         cfg.Enhancement.TargetLanguage,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, manager: manager, orchestrator: orchestrator}, nil
}

func parseLevel(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type serveCmd struct {
	Listen string `help:"Listen address, overrides config port."`
}

func (s *serveCmd) Run(c *cli) error {
	a, err := buildApp(c)
	if err != nil {
		return err
	}

	L_info("ragocr %s starting", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.manager.StartHealthLoop(ctx)

	listen := s.Listen
	if listen == "" {
		listen = fmt.Sprintf(":%d", a.cfg.Server.Port)
	}

	server := httpapi.NewServer(httpapi.ServerConfig{Listen: listen}, a.orchestrator, a.manager)
	if err := server.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	L_info("ragocr shutting down")
	cancel()
	return server.Stop()
}

type enhanceCmd struct {
	File         string `arg:"" optional:"" help:"Text file to enhance; stdin when omitted."`
	Type         string `help:"Document type: general, code, invoice, form, handwritten, multilingual." default:"unknown"`
	Image        string `help:"Optional page image for vision-capable providers."`
	Lang         string `help:"Target language: auto, vi, en." default:""`
	PreferVision bool   `help:"Prefer vision-capable providers when an image is given." default:"true"`
	JSON         bool   `help:"Print the full result as JSON."`
}

func (e *enhanceCmd) Run(c *cli) error {
	a, err := buildApp(c)
	if err != nil {
		return err
	}

	var text []byte
	if e.File != "" {
		text, err = os.ReadFile(e.File)
	} else {
		text, err = readAllStdin()
	}
	if err != nil {
		return err
	}

	var image []byte
	if e.Image != "" {
		image, err = os.ReadFile(e.Image)
		if err != nil {
			return err
		}
	}

	result := a.orchestrator.Enhance(context.Background(), enhance.Request{
		Text:           string(text),
		DocumentType:   e.Type,
		Image:          image,
		PreferVision:   e.PreferVision,
		TargetLanguage: e.Lang,
	})

	if e.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.EnhancedText == "" {
		fmt.Fprintf(os.Stderr, "enhancement failed: %s\n", result.ErrorMessage)
		fmt.Print(result.OriginalText)
		return nil
	}
	fmt.Println(result.EnhancedText)
	return nil
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no input: pass a file or pipe text on stdin")
	}
	return io.ReadAll(os.Stdin)
}

type providersCmd struct{}

func (p *providersCmd) Run(c *cli) error {
	a, err := buildApp(c)
	if err != nil {
		return err
	}

	names := a.manager.Registry().Names()
	if len(names) == 0 {
		fmt.Println("no providers enabled")
		return nil
	}
	for _, name := range names {
		status, _ := a.manager.Registry().Status(name)
		adapter, _ := a.manager.Registry().Adapter(name)
		fmt.Printf("%-10s model=%s vision=%v\n", name, adapter.Model(ai.HintNone), status.SupportsVision)
	}
	return nil
}

type initConfigCmd struct{}

func (i *initConfigCmd) Run(c *cli) error {
	if err := config.WriteDefault(c.Config); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", c.Config)
	return nil
}

type versionCmd struct{}

func (v *versionCmd) Run(c *cli) error {
	fmt.Printf("ragocr %s\n", version)
	return nil
}
