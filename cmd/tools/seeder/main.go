package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/presupuesto/internal/app"
	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/config"
	"github.com/noah-isme/presupuesto/internal/importer"
)

func main() {
	file := flag.String("file", "", "xlsx workbook with codigo, detalle, stock and precio columns")
	dryRun := flag.Bool("dry-run", false, "parse the workbook without replacing the catalog")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.RedisEnabled() && !*dryRun {
		log.Fatal("REDIS_URL is not set; nothing would persist the imported catalog")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var target replacer
	if !*dryRun {
		deps, err := app.Build(ctx, cfg, zerolog.Nop(), app.Options{})
		if err != nil {
			log.Fatalf("initialise dependencies: %v", err)
		}
		defer deps.Close()
		target = deps.Catalog
	}

	summary, err := seed(ctx, f, target)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	log.Print(summary)
}

type replacer interface {
	Replace(ctx context.Context, products []catalog.Product, source string) (catalog.ReplaceResult, error)
}

// seed reads the workbook in r and, when target is set, replaces the catalog with it.
func seed(ctx context.Context, r io.Reader, target replacer) (string, error) {
	res, err := importer.Read(r)
	if err != nil {
		return "", err
	}
	if target == nil {
		return fmt.Sprintf("parsed %d products, skipped %d rows (dry run)", len(res.Products), res.Skipped), nil
	}
	out, err := target.Replace(ctx, res.Products, "import")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("imported %d products, skipped %d rows", out.Accepted, res.Skipped+out.Rejected), nil
}
