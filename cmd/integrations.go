package main

import (
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/pkg/notion"
	sfpkg "github.com/sells-group/datafixer/pkg/salesforce"
)

func initSalesforce() (sfpkg.Client, error) {
	if err := cfg.Validate(config.ModeSalesforce); err != nil {
		return nil, err
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	var opts []sfpkg.ClientOption
	if cfg.Salesforce.RateLimit > 0 {
		opts = append(opts, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
	}
	return sfpkg.NewClient(sf, opts...), nil
}

func initNotion() (notion.Client, error) {
	if err := cfg.Validate(config.ModeNotion); err != nil {
		return nil, err
	}
	var opts []notion.ClientOption
	if cfg.Notion.RateLimit > 0 {
		opts = append(opts, notion.WithRateLimit(cfg.Notion.RateLimit))
	}
	return notion.NewClient(cfg.Notion.Token, opts...), nil
}
