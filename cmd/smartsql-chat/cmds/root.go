package cmds

import "github.com/spf13/cobra"

// AddToRootCommand registers every smartsql-chat command on root.
func AddToRootCommand(root *cobra.Command) {
	chat, err := NewChatCommand()
	cobra.CheckErr(err)
	health, err := NewHealthCommand()
	cobra.CheckErr(err)
	upload, err := NewUploadCommand()
	cobra.CheckErr(err)
	verify, err := NewVerifyCommand()
	cobra.CheckErr(err)
	verifyDataset, err := NewVerifyDatasetCommand()
	cobra.CheckErr(err)
	draft, err := NewDraftCommand()
	cobra.CheckErr(err)
	ask, err := NewAskCommand()
	cobra.CheckErr(err)
	execute, err := NewExecuteCommand()
	cobra.CheckErr(err)

	root.AddCommand(
		buildCobra(chat),
		buildCobra(health),
		buildCobra(upload),
		buildCobra(verify),
		buildCobra(verifyDataset),
		buildCobra(draft),
		buildCobra(ask),
		buildCobra(execute),
		contractGroup(),
		documentGroup(documentSettings),
		documentGroup(documentCatalog),
		historyGroup(),
	)
}
