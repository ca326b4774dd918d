package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/catalog"
	"github.com/voyagen/channelfold/internal/config"
	"github.com/voyagen/channelfold/internal/service"
)

// catalogConnector returns a ConnectFunc for the configured catalog, or nil
// when no catalog URL is set. With credentials configured every connection
// logs in anew so expired tokens are not reused.
func catalogConnector(cfg config.CatalogConfig, log *zap.Logger) service.ConnectFunc {
	if cfg.URL == "" {
		return nil
	}
	return func(ctx context.Context) (service.Catalog, error) {
		c := catalog.New(cfg.URL, catalog.WithToken(cfg.Token), catalog.WithLogger(log))
		if cfg.Username != "" {
			if _, err := c.Login(ctx, cfg.Username, cfg.Password); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
}
