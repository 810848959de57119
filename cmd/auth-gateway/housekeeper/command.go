package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/bcc-code/auth-gateway/internal/business"
	"github.com/bcc-code/auth-gateway/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Auth Gateway Housekeeping job",
		"Auth Gateway Housekeeping job sweeps orphaned session store entries",
		buildInfo,
		cmdutils.RunAsJob,
		business.HousekeeperMain,
	)
}
