// cmd/agent/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/victor045/Agente-financiero/internal/analyzer"
	"github.com/victor045/Agente-financiero/internal/common/config"
	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
	"github.com/victor045/Agente-financiero/internal/dataset"
	"github.com/victor045/Agente-financiero/internal/formatter"
	"github.com/victor045/Agente-financiero/internal/interpreter"
	"github.com/victor045/Agente-financiero/internal/llm"
	"github.com/victor045/Agente-financiero/internal/memory"
	"github.com/victor045/Agente-financiero/internal/selector"
	"github.com/victor045/Agente-financiero/internal/workflow"
)

var exitCommands = map[string]bool{
	"exit": true, "quit": true, "salir": true, "q": true,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := logger.NewZapAdapter(zapLogger)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn("Metrics endpoint stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
		log.Info("Metrics endpoint started", map[string]interface{}{"addr": cfg.Metrics.Addr})
	}

	loader := dataset.NewLoader(cfg.Data.Directory, cfg.Data.Extensions, log)
	client := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     config.GetDuration(cfg.LLM.Timeout),
		MaxRetries:  cfg.LLM.MaxRetries,
	}, log)

	ledger := memory.NewLedger(cfg.Memory.Capacity)
	orchestrator := workflow.New(
		interpreter.New(client, log),
		selector.New(log),
		analyzer.New(cfg.Analysis.TopN, log),
		loader,
		client,
		formatter.New(log),
		ledger,
		workflow.Config{
			FeedbackCap:       cfg.Analysis.FeedbackCap,
			ContextWindow:     cfg.Memory.ContextWindow,
			EnableElaboration: cfg.Analysis.EnableElaboration,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Agent started", map[string]interface{}{
		"data_dir": cfg.Data.Directory,
		"model":    cfg.LLM.Model,
	})

	printBanner(ctx, loader)
	runREPL(ctx, orchestrator, ledger, apperrors.NewHandler(log))
}

func printBanner(ctx context.Context, loader *dataset.Loader) {
	fmt.Println("Agente financiero. Escribe tu pregunta, o 'ayuda' para ver los comandos.")
	catalog, err := loader.Catalog(ctx)
	if err != nil {
		fmt.Printf("Advertencia: no se pudo leer el directorio de datos: %v\n", err)
		return
	}
	fmt.Printf("Fuentes disponibles: %d\n", len(catalog))
	for _, src := range catalog {
		fmt.Printf("  - %s (%d registros)\n", src.ID, src.RowCount)
	}
	fmt.Println()
}

func runREPL(ctx context.Context, orchestrator *workflow.Orchestrator, ledger *memory.Ledger, errHandler *apperrors.Handler) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nHasta luego.")
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case exitCommands[strings.ToLower(line)]:
			fmt.Println("Hasta luego.")
			return
		case strings.EqualFold(line, "ayuda") || strings.EqualFold(line, "help"):
			printHelp()
		case strings.EqualFold(line, "stats"):
			printStats(ledger)
		case strings.EqualFold(line, "export"):
			printExport(ledger)
		case strings.EqualFold(line, "clear"):
			ledger.Clear()
			fmt.Println("Memoria de conversación borrada.")
		default:
			answer, err := orchestrator.Ask(ctx, line)
			if err != nil {
				if ctx.Err() != nil {
					fmt.Println("\nHasta luego.")
					return
				}
				stdErr := errHandler.Handle(line, err)
				fmt.Printf("No pude responder esa pregunta (%s): %s\n\n", stdErr.Code, stdErr.Message)
				continue
			}
			fmt.Println(answer.Text)
			fmt.Println()
		}
	}
}

func printHelp() {
	fmt.Println(`Comandos:
  stats   - estado de la memoria de conversación
  export  - exporta las preguntas y respuestas retenidas como JSON
  clear   - borra la memoria de conversación
  salir   - termina la sesión (también: exit, quit, q)
Cualquier otra entrada se trata como una pregunta financiera.`)
}

func printStats(ledger *memory.Ledger) {
	stats := ledger.GetStats()
	fmt.Printf("Registros: %d/%d (aclaraciones: %d)\n", stats.Size, stats.Capacity, stats.Clarifications)
	if stats.TopKind != "" {
		fmt.Printf("Análisis más frecuente: %s (%d)\n", stats.TopKind, stats.Kinds[stats.TopKind])
	}
	if stats.Size > 0 {
		fmt.Printf("Desde %s hasta %s\n",
			stats.OldestAt.Format("2006-01-02 15:04"),
			stats.NewestAt.Format("2006-01-02 15:04"))
	}
}

func printExport(ledger *memory.Ledger) {
	turns := ledger.Export()
	if len(turns) == 0 {
		fmt.Println("No hay conversación que exportar.")
		return
	}
	out, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		fmt.Printf("No se pudo exportar: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
