package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/finledger/auth-callback/internal/business"
	"github.com/finledger/auth-callback/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Auth callback API server",
		"Auth callback API server completes OAuth sign-ins redirected back by the identity provider "+
			"and serves the error classification and retry endpoints.",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
