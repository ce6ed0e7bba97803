// Package catalog assembles the full action toolset for one workspace.
package catalog

import (
	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/tools/files"
	"github.com/nexar-labs/nexar/internal/tools/flow"
	"github.com/nexar-labs/nexar/internal/tools/shell"
	"github.com/nexar-labs/nexar/pkg/models"
)

// Register installs every action type on the registry, all scoped to
// the given workspace root. Workspace writes serialize on the given
// path-lock table so parallel actions cannot interleave edits to the
// same file; pass the table the editor's file service uses to serialize
// against editor saves too. A nil locks allocates a private table.
func Register(reg *tools.Registry, workspace string, locks *files.PathLocks) {
	if locks == nil {
		locks = files.NewPathLocks()
	}
	fileCfg := files.Config{Workspace: workspace, Locks: locks}
	shellCfg := shell.Config{Workspace: workspace}

	reg.Register(files.NewScanTool(fileCfg))
	reg.Register(files.NewReadFilesTool(fileCfg))
	reg.Register(files.NewSearchTool(fileCfg))
	reg.Register(files.NewExtractSymbolsTool(fileCfg))
	reg.Register(files.NewAnalyzeDependenciesTool(fileCfg))
	reg.Register(files.NewCreateFileTool(fileCfg))
	reg.Register(files.NewUpdateFileTool(fileCfg))
	reg.Register(files.NewDeleteFileTool(fileCfg))
	reg.Register(files.NewMoveFileTool(fileCfg))
	reg.Register(files.NewApplyPatchTool(fileCfg))

	reg.Register(shell.NewCommandTool(models.ActionRunCommand, shellCfg))
	reg.Register(shell.NewCommandTool(models.ActionRunTests, shellCfg))
	reg.Register(shell.NewCommandTool(models.ActionRunLint, shellCfg))
	reg.Register(shell.NewCommandTool(models.ActionRunBuild, shellCfg))

	reg.Register(flow.NewAskUserTool())
	reg.Register(flow.NewRequestApprovalTool())
	reg.Register(flow.NewFinalAnswerTool())
	reg.Register(flow.NewReportBlockerTool())
	reg.Register(flow.NewValidateResultTool())
	reg.Register(flow.NewSummarizeContextTool())
	reg.Register(flow.NewProposeSubplanTool())
}
