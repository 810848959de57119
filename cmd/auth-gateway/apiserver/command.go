package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/bcc-code/auth-gateway/internal/business"
	"github.com/bcc-code/auth-gateway/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Auth Gateway API server",
		"Auth Gateway API server hosts the public authentication http API",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
