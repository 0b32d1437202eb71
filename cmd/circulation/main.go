// cmd/circulation/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"circulib/internal/circulation"
	"circulib/internal/clients"
	"circulib/internal/config"
	"circulib/internal/eventlog"
	"circulib/internal/search"
	"circulib/internal/store"
	"circulib/internal/transitions"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}
	cfg := config.Load()

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	shutdownTracing, err := initTracing(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	records := store.NewPostgres(db)
	pids := store.NewPIDProvider(db)
	index := search.NewIndex(db, cfg)
	audit := eventlog.NewLog(db)
	notifier := clients.NewNotificationsClient(cfg.NotificationURL)
	engine := transitions.NewEngine(records, index, notifier, audit, cfg)

	svc := circulation.NewService(cfg, records, index, index, engine, pids, notifier)
	handler := circulation.NewHandler(svc)

	stationAuth := circulation.StationAuth(
		cfg.SelfCheckoutStationKeyHash,
		cfg.SelfCheckoutStationKeySalt,
		circulation.NewStationLimiter(),
	)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(circulation.ActingUser(cfg.JWTSecret))
	router.Mount("/circulation", handler.Routes(stationAuth))

	fmt.Printf("🚀 Starting Circulation Service on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, router))
}

func initTracing(ctx context.Context) (func(), error) {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("circulation")),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.Printf("failed to shut down tracer provider: %v", err)
		}
	}, nil
}
