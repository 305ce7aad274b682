package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"kb_article_publisher/generator"
	"kb_article_publisher/kbschema"
	"kb_article_publisher/publisher"
	"kb_article_publisher/server"
	"kb_article_publisher/servicenow"
)

// stringList lets -tag and -attach be repeated.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.json", "path to config.json")
	sopPath := flag.String("sop", "", "path to the SOP markdown file")
	kbBase := flag.String("kb-base", "", "target KB base sys_id (auto-detected from -existing when omitted)")
	category := flag.String("category", "", "article category (plan value wins; this fills the gap)")
	existing := flag.String("existing", "", "sys_id of an existing article to update")
	publish := flag.Bool("publish", false, "attempt to move the article to the published state")
	serve := flag.Bool("serve", false, "start the HTTP API server")
	addr := flag.String("addr", "", "listen address when --serve (overrides config.server_addr)")
	verbose := flag.Bool("v", false, "enable info logs")

	var tags, attachments stringList
	flag.Var(&tags, "tag", "tag to associate with the article (can be repeated)")
	flag.Var(&attachments, "attach", "path to a file to attach (can be repeated)")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync()

	cfg, err := publisher.LoadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	store, err := servicenow.New(cfg.ServiceNow, nil, logger)
	if err != nil {
		fatal(err)
	}

	llm, err := buildLLM(cfg)
	if err != nil {
		fatal(err)
	}
	adapter, err := generator.NewAdapter(llm)
	if err != nil {
		fatal(err)
	}

	// Schema validation is an optional capability; a broken schema only
	// reduces guarantees, it never blocks a run.
	var validator publisher.Validator
	if v, verr := kbschema.NewValidator(); verr == nil {
		validator = v
	} else {
		logger.Warn("schema validator unavailable", zap.Error(verr))
	}

	pub, err := publisher.New(adapter, store, validator, logger)
	if err != nil {
		fatal(err)
	}

	if *serve {
		srv, err := server.New(pub, logger)
		if err != nil {
			fatal(err)
		}
		listen := cfg.ServerAddr
		if *addr != "" {
			listen = *addr
		}
		if listen == "" {
			listen = ":8080"
		}
		logger.Info("starting server", zap.String("addr", listen))
		if err := http.ListenAndServe(listen, srv.Routes()); err != nil {
			fatal(err)
		}
		return
	}

	if *sopPath == "" {
		fatal(fmt.Errorf("-sop is required"))
	}
	if *kbBase == "" && *existing == "" {
		fatal(fmt.Errorf("-kb-base or -existing is required"))
	}

	sop, err := os.ReadFile(*sopPath)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()

	// When updating, fill kb base and category from the existing record if
	// the caller did not override them.
	if *existing != "" && (*kbBase == "" || *category == "") {
		rec, err := store.Get(ctx, *existing)
		if err != nil {
			fatal(err)
		}
		if *kbBase == "" {
			*kbBase = rec.KBBaseSysID
		}
		if *category == "" {
			*category = rec.Category
		}
		if *kbBase == "" {
			fatal(fmt.Errorf("unable to determine kb base sys_id; pass -kb-base explicitly"))
		}
	}

	result, err := pub.Run(ctx, publisher.RunParams{
		SOPMarkdown:   string(sop),
		KBBaseSysID:   *kbBase,
		Category:      *category,
		Tags:          tags,
		Attachments:   attachments,
		Publish:       *publish,
		ExistingSysID: *existing,
	})
	if err != nil {
		fatal(err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func buildLLM(cfg publisher.Config) (generator.LLMClient, error) {
	if cfg.LLM == nil || cfg.LLM.Provider == "" {
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key in config")
	}
	settings := &generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	}
	switch cfg.LLM.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek exposes an OpenAI-compatible endpoint; base_url is required.
		if cfg.LLM.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
