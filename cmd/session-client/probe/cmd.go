package probe

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"probe",
		"Session Client probe",
		"Session Client probe keeps an authenticated session against the ERP API and probes its endpoints",
		buildInfo,
		cmdutils.RunAsService,
		business.ProbeMain,
	)
}
