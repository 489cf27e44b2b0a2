package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/rerank"
	"document-qa/internal/vectorstore"
	"document-qa/internal/vectorstore/chromemdb"
	"document-qa/internal/vectorstore/qdrant"
	"document-qa/internal/vectorstore/sqlite"
	"document-qa/internal/workerpool"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	tenant := flag.Int64("tenant", 1, "Tenant (user) id all operations are scoped to")
	filePath := flag.String("file", "", "Path to a document to ingest")
	query := flag.String("query", "", "Question to be answered")
	list := flag.Bool("list", false, "List ingested documents")
	deleteFile := flag.String("delete", "", "Filename of a document to delete")
	clearAll := flag.Bool("clear", false, "Delete every document of the tenant")
	exportFile := flag.String("export", "", "Export the chromem collection to a file")
	importFile := flag.String("import", "", "Import a chromem collection file")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.Log.Level, *debug)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := openStore(ctx, &cfg.VectorStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer store.Close()

	if *exportFile != "" || *importFile != "" {
		snapshot(store, *exportFile, *importFile)
		return
	}

	historyDB, err := db.Open(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer historyDB.Close()

	svc, err := rag.NewService(cfg.RAG, rag.Deps{
		Extractor:   parser.New(),
		Embedder:    embedding.NewFromConfig(cfg),
		Store:       store,
		Reranker:    rerank.NewFromConfig(&cfg.Reranker),
		Synthesizer: llmservice.NewChatClient(&cfg.Ollama),
		Facts:       llmservice.NewOllamaFactExtractor(&cfg.Ollama),
		History:     db.NewHistoryRepo(historyDB),
		Pool:        workerpool.New(cfg.Workers.Size),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating service")
	}

	switch {
	case *filePath != "":
		storeFile(ctx, svc, *tenant, *filePath, *asJSON)
	case *query != "":
		ask(ctx, svc, *tenant, *query, *asJSON)
	case *list:
		listDocuments(ctx, svc, *tenant, *asJSON)
	case *deleteFile != "":
		if err := svc.Delete(ctx, *tenant, *deleteFile); err != nil {
			fail(err, "Error deleting document")
		}
		color.Green("Deleted %s", *deleteFile)
	case *clearAll:
		if err := svc.Clear(ctx, *tenant); err != nil {
			fail(err, "Error clearing documents")
		}
		color.Green("Cleared all documents of tenant %d", *tenant)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func setLogLevel(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func openStore(ctx context.Context, cfg *config.VectorStoreConfig) (vectorstore.Store, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.Open(cfg)
	case "qdrant":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return qdrant.Open(connectCtx, cfg)
	default:
		return chromemdb.NewVectorDBManager(cfg)
	}
}

func snapshot(store vectorstore.Store, exportFile, importFile string) {
	m, ok := store.(*chromemdb.VectorDBManager)
	if !ok {
		log.Fatal().Msg("Export and import need vector_store.type chromem")
	}
	key := os.Getenv("RAG_EXPORT_KEY")
	if exportFile != "" {
		if err := m.Export(exportFile, key); err != nil {
			log.Fatal().Err(err).Msg("Error exporting collection")
		}
		color.Green("Exported collection to %s", exportFile)
	}
	if importFile != "" {
		if err := m.Import(importFile, key); err != nil {
			log.Fatal().Err(err).Msg("Error importing collection")
		}
		color.Green("Imported collection from %s", importFile)
	}
}

func storeFile(ctx context.Context, svc *rag.Service, tenant int64, filePath string, asJSON bool) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}
	res, err := svc.Ingest(ctx, tenant, filepath.Base(filePath), data)
	if err != nil {
		fail(err, "Error ingesting document")
	}
	if asJSON {
		helper.PrettyPrint(res)
		return
	}
	color.Green("Stored %d chunks from %d pages of %s", res.ChunksStored, res.Pages, res.Filename)
}

func ask(ctx context.Context, svc *rag.Service, tenant int64, query string, asJSON bool) {
	answer, err := svc.Ask(ctx, tenant, query)
	if err != nil {
		fail(err, "Error querying")
	}
	if asJSON {
		helper.PrettyPrint(answer)
		return
	}

	bold := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s\n%s\n\n", bold("Query:"), query)
	fmt.Printf("%s\n", bold("Sources:"))
	for _, s := range answer.Sources {
		fmt.Printf("  - %s (page %d)\n", s.Filename, s.PageNumber)
	}
	fmt.Printf("\n%s\n%s\n", bold("Assistant:"), answer.Text)
}

func listDocuments(ctx context.Context, svc *rag.Service, tenant int64, asJSON bool) {
	names, err := svc.ListDocuments(ctx, tenant)
	if err != nil {
		fail(err, "Error listing documents")
	}
	if asJSON {
		helper.PrettyPrint(names)
		return
	}
	if len(names) == 0 {
		color.Yellow("No documents uploaded yet")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

// fail exits with a message that tells user errors apart from provider outages.
func fail(err error, msg string) {
	switch {
	case errors.Is(err, models.ErrNoDocuments):
		color.Yellow("No documents uploaded yet. Ingest one with -file first.")
	case errors.Is(err, models.ErrNotFound):
		color.Yellow("Not found: %v", err)
	case errors.Is(err, models.ErrEmptyUpload), errors.Is(err, models.ErrEmptyContent),
		errors.Is(err, models.ErrUnsupportedFormat), errors.Is(err, models.ErrDocumentParse):
		color.Red("Document rejected: %v", err)
	case models.IsRetryable(err):
		color.Red("Model provider unavailable, try again later: %v", err)
	default:
		log.Error().Err(err).Msg(msg)
	}
	os.Exit(1)
}
