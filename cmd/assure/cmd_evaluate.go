package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudprobe/assure/assets"
	"github.com/cloudprobe/assure/certification"
	"github.com/cloudprobe/assure/config"
	"github.com/cloudprobe/assure/pipeline"
	"github.com/cloudprobe/assure/pubsub"
	"github.com/cloudprobe/assure/rules"
	"github.com/cloudprobe/assure/storage"
)

var (
	evalConfigPath string
	evalInput      string
	evalOutput     string
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a discovery result once and report fulfillment",
	Long: `Run a single assessment pass: load the rules and certification
catalogs from the configuration, feed one discovery result through the
evaluation pipeline, and print the resulting control fulfillment.`,
	Example: `  assure evaluate --config assure.yaml --input scan.json
  assure evaluate --config assure.yaml --input scan.json --output json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evalConfigPath, "config", "c", "assure.yaml", "Configuration file")
	evaluateCmd.Flags().StringVarP(&evalInput, "input", "i", "", "Discovery result JSON file (required)")
	evaluateCmd.Flags().StringVarP(&evalOutput, "output", "o", "table", "Output format: table, json")
	_ = evaluateCmd.MarkFlagRequired("input")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if evalOutput != "table" && evalOutput != "json" {
		return fmt.Errorf("invalid output format: %s (must be table or json)", evalOutput)
	}

	cfg, err := config.LoadConfig(evalConfigPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := loadDiscovery(evalInput)
	if err != nil {
		return err
	}

	engine.handleScan(ctx, result)

	switch evalOutput {
	case "json":
		return printJSON(engine.certifications.Certifications())
	default:
		printFulfillmentTable(engine.certifications.Certifications())
		return nil
	}
}

// engine bundles the assessment components wired from a config.
type engine struct {
	rules          *rules.Store
	registry       *assets.Registry
	store          storage.Store
	broker         *pubsub.Broker[*certification.Certification]
	certifications *certification.Service
	pipeline       *pipeline.Pipeline
}

// newEngine wires rules, registry, storage, broker, certification service
// and pipeline from the configuration. Catalogs listed in the config are
// loaded and registered.
func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	ruleStore := rules.NewStore()
	if err := ruleStore.Load(ctx, cfg.RulesDir); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	var store storage.Store
	if cfg.StorageDir != "" {
		bolt, err := storage.Open(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		store = bolt
	}

	registry := assets.NewRegistry()
	broker := pubsub.NewBroker[*certification.Certification](cfg.Publish.Buffer)
	service := certification.NewService(ruleStore, registry, store, broker)

	for _, path := range cfg.Catalogs {
		cert, err := certification.LoadCatalog(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
		}
		service.Load(ctx, cert)
	}

	return &engine{
		rules:          ruleStore,
		registry:       registry,
		store:          store,
		broker:         broker,
		certifications: service,
		pipeline:       pipeline.New(ruleStore, registry, service),
	}, nil
}

// handleScan evaluates a batch and snapshots it for later replay; the
// daemon re-evaluates persisted scans after every rule reload.
func (e *engine) handleScan(ctx context.Context, result *assets.DiscoveryResult) {
	e.pipeline.Handle(ctx, result)
	if e.store != nil {
		if err := e.store.SaveOrUpdate(storage.BucketScans, result.ScanID, result); err != nil {
			log.Warn().Err(err).Str("scan_id", result.ScanID).Msg("failed to snapshot scan")
		}
	}
}

// replayScans re-evaluates every persisted scan snapshot.
func (e *engine) replayScans(ctx context.Context) {
	if e.store == nil {
		return
	}

	err := e.store.List(storage.BucketScans, func(key string, data []byte) error {
		var result assets.DiscoveryResult
		if err := json.Unmarshal(data, &result); err != nil {
			log.Warn().Err(err).Str("scan_id", key).Msg("skipping unreadable scan snapshot")
			return nil
		}
		e.pipeline.Handle(ctx, &result)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("scan replay failed")
	}
}

func (e *engine) Close() {
	e.broker.Close()
	if e.store != nil {
		_ = e.store.Close()
	}
}

func printJSON(certs []*certification.Certification) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(certs)
}

func printFulfillmentTable(certs []*certification.Certification) {
	sort.Slice(certs, func(i, j int) bool { return certs[i].ID < certs[j].ID })

	for _, cert := range certs {
		fmt.Printf("%s\n%s\n", cert.ID, strings.Repeat("-", len(cert.ID)))
		for _, control := range cert.Controls {
			marker := " "
			if !control.Active {
				marker = "·"
			}
			fmt.Printf("%s %-16s %-13s %s\n", marker, control.ControlID, control.Fulfilled, control.Name)
		}
		fmt.Println()
	}
}
