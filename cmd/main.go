package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"video-rag/internal/chromemdb"
	"video-rag/internal/config"
	"video-rag/internal/db"
	"video-rag/internal/embedding"
	"video-rag/internal/export"
	"video-rag/internal/helper"
	"video-rag/internal/ingest"
	"video-rag/internal/llmservice"
	"video-rag/internal/models"
	"video-rag/internal/rag"
	"video-rag/internal/session"
	"video-rag/internal/transcript"
	"video-rag/internal/youtube"
)

const configFilePath = "./configs/config.yaml"

type app struct {
	cfg   *config.Config
	rag   *rag.RAG
	store *db.Store
	bun   *bun.DB
	close []func()
}

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	ingestRef := flag.String("ingest", "", "Video URL or id to register and vectorize")
	title := flag.String("title", "", "Episode title (defaults to the platform title)")
	description := flag.String("description", "", "Episode description")
	newsletter := flag.String("newsletter", "", "Newsletter id of the episode")
	video := flag.String("video", "", "Video URL or id to ask about")
	ask := flag.String("ask", "", "Question to answer")
	asker := flag.String("asker", "cli", "Asker id")
	org := flag.String("org", "", "Asker organization type")
	role := flag.String("role", "", "Asker job role")
	model := flag.String("model", "", "Model name, e.g. gpt-5-mini")
	answer := flag.String("answer", "", "Question id whose saved answer is printed as HTML")
	exportPath := flag.String("export", "", "Write the questions of -video to this xlsx file")
	initDB := flag.Bool("init-db", false, "Create database tables and exit")
	resetDB := flag.Bool("reset-db", false, "With -init-db, drop existing tables first")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// logger is not configured yet
		helper.SetupLogger("info", true)
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Console)
	log.Debug().Str("vector_store", cfg.RAG.VectorStore).Str("model", cfg.InferenceLLM.Model).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, *initDB, *resetDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing")
	}
	defer a.shutdown()

	switch {
	case *initDB:
		log.Info().Msg("Database initialized")
	case *ingestRef != "":
		a.ingest(ctx, ingest.RegisterRequest{
			VideoRef:     *ingestRef,
			Title:        *title,
			Description:  *description,
			NewsletterID: *newsletter,
		})
	case *ask != "":
		var profile *models.AskerProfile
		if *org != "" || *role != "" {
			profile = &models.AskerProfile{OrganizationType: *org, JobRole: *role}
		}
		a.ask(ctx, rag.AskRequest{
			VideoID:  mustVideoID(*video),
			Question: *ask,
			AskerID:  *asker,
			Profile:  profile,
			Model:    *model,
		})
	case *answer != "":
		a.printAnswer(ctx, *answer)
	case *exportPath != "":
		a.export(ctx, mustVideoID(*video), *exportPath)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func newApp(ctx context.Context, cfg *config.Config, initDB, resetDB bool) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Database.URL != "" {
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.bun = db.NewDB(sqldb, cfg.Database.Debug)
		a.close = append(a.close, func() { _ = a.bun.Close() })
		if initDB && resetDB {
			if err := db.DropAll(ctx, a.bun); err != nil {
				return nil, err
			}
		}
		if initDB {
			if err := db.InitDB(ctx, a.bun); err != nil {
				return nil, err
			}
		}
		a.store = db.NewStore(a.bun)
	} else if initDB {
		return nil, errors.New("-init-db needs database.url")
	}

	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	var index interface {
		rag.VectorIndex
		ingest.PassageIndex
	}
	switch cfg.RAG.VectorStore {
	case "postgres":
		index = db.NewPassageStore(a.bun, embedder.Dimensions())
	default:
		if !cfg.RAG.ChromemInMemory {
			if err := helper.CreateFolder(cfg.RAG.ChromemPath); err != nil {
				return nil, err
			}
		}
		index, err = chromemdb.NewVectorDBManager(cfg.RAG.ChromemPath, cfg.RAG.ChromemInMemory, cfg.RAG.Compress, embedder.Dimensions())
		if err != nil {
			return nil, err
		}
	}

	llm, err := llmservice.NewModel(&cfg.InferenceLLM)
	if err != nil {
		return nil, err
	}
	registry := llmservice.NewRegistry(cfg.InferenceLLM.Model, cfg.InferenceLLM.Aliases)

	yt := youtube.NewClient(
		youtube.WithUserAgent(cfg.Transcript.UserAgent),
		youtube.WithBaseURL(cfg.Transcript.BaseURL),
		youtube.WithRetries(cfg.Transcript.MaxRetries, 0),
		youtube.WithHTTPClient(&http.Client{Timeout: cfg.Transcript.HTTPTimeout.Duration}),
	)
	fetcher := transcript.NewFetcher(transcript.DefaultStrategies(yt, cfg.Transcript)...)
	pipeline := ingest.NewPipeline(fetcher, embedder, index, cfg.RAG.MaxChunkTokens).WithMetadata(yt)

	// typed nil must not leak into the interfaces below
	var (
		questions rag.QuestionStore
		answers   rag.AnswerStore
	)
	if a.store != nil {
		questions, answers = a.store, a.store
		pipeline.WithEpisodes(a.store)
	}

	generator := rag.NewGenerator(llm, registry, answers, cfg.RAG.GenerationTimeout.Duration)
	a.rag = rag.NewRAG(&cfg.RAG, rag.NewRetriever(embedder, index), generator, questions).WithPipeline(pipeline)

	if cfg.Redis.Addr != "" {
		client := session.NewRedisClient(&cfg.Redis)
		a.close = append(a.close, func() { _ = client.Close() })
		a.rag.WithGuard(session.NewRedisGuard(client, cfg.Redis.GuardTTL.Duration))
	} else {
		a.rag.WithGuard(session.NewRegistry())
	}
	return a, nil
}

func (a *app) shutdown() {
	for i := len(a.close) - 1; i >= 0; i-- {
		a.close[i]()
	}
}

func (a *app) ingest(ctx context.Context, req ingest.RegisterRequest) {
	res, err := a.rag.RegisterVideo(ctx, req)
	if res != nil {
		helper.PrettyPrint(res)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error registering video")
	}
}

func (a *app) ask(ctx context.Context, req rag.AskRequest) {
	ans, err := a.rag.Ask(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Error asking question")
	}

	log.Info().Msg("Question: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", req.Question)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for i, s := range ans.Sources {
		fmt.Printf("[%d] (%s) %s\n", i+1, s.Timestamp, s.Text)
	}
	fmt.Println()

	log.Info().Str("question_id", ans.QuestionID).Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for frag := range ans.Stream.Fragments() {
		fmt.Print(frag)
	}
	fmt.Printf("\n\n")

	if err := ans.Stream.Err(); err != nil {
		log.Fatal().Err(err).Msg("Answer incomplete")
	}
	if w := ans.Stream.Warning(); w != nil {
		log.Warn().Err(w).Msg("Answer not saved")
	}
}

func (a *app) printAnswer(ctx context.Context, questionID string) {
	rec, err := a.rag.GetAnswer(ctx, questionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading answer")
	}
	if err := export.RenderAnswerHTML(os.Stdout, rec); err != nil {
		log.Fatal().Err(err).Msg("Error rendering answer")
	}
	fmt.Println()
}

func (a *app) export(ctx context.Context, videoID, path string) {
	items, err := a.rag.ListQuestions(ctx, videoID, 1000)
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing questions")
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating export file")
	}
	defer f.Close()
	if err := export.WriteAnswersXLSX(f, items); err != nil {
		log.Fatal().Err(err).Msg("Error writing export")
	}
	log.Info().Int("questions", len(items)).Str("path", path).Msg("Exported questions")
}

func mustVideoID(ref string) string {
	if strings.TrimSpace(ref) == "" {
		log.Fatal().Msg("Please provide a video using the -video flag")
	}
	id, err := youtube.ParseVideoID(ref)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid video")
	}
	return id
}
