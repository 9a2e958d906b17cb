package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	httpapi "github.com/jinford/mailcraft/internal/interface/http"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := int(cmd.Int("port"))
	if !cmd.IsSet("port") {
		port = appCtx.Config.HTTPPort
	}

	server := httpapi.NewServer(
		appCtx.Container.EmailService,
		fmt.Sprintf(":%d", port),
		httpapi.WithServerLogger(appCtx.Logger()),
	)
	return server.Start(ctx)
}
