// ontology-check：加载本体并按 "term,weight" 逐行输出展开后的权重表，用于上线前校验
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"scouter/internal/config"
	"scouter/internal/logger"
	"scouter/internal/ontology"
)

func main() {
	path := flag.String("file", "", "ontology file; empty uses ONTOLOGY_PATH or the configured bucket")
	flag.Parse()
	l := logger.Setup()

	var src ontology.Source
	if *path != "" {
		src = ontology.FileSource{Path: *path}
	} else {
		cfg, err := config.Load()
		if err != nil {
			l.Error("config_error", "err", err)
			os.Exit(1)
		}
		if src, err = cfg.OntologySource(); err != nil {
			l.Error("ontology_source_error", "err", err)
			os.Exit(1)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	table, err := ontology.Load(ctx, src)
	if err != nil {
		os.Exit(1)
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, term := range table.Terms() {
		weight, _ := table.WeightOf(term)
		fmt.Fprintf(w, "%s,%d\n", term, weight)
	}
}
