// Package handlers contains the task handlers the control plane registers
// into the engine at startup: image pulls and builds, compose stack actions,
// git workspace operations and log exports. Each handler shells out through
// the streaming command runner so the task's log grows while the work is
// still running.
package handlers

import (
	"fmt"
	"os"
	"time"

	"dockhand/internal/command"
	"dockhand/internal/config"
	"dockhand/internal/models"
	"dockhand/internal/task"
	"dockhand/internal/tasklog"
)

// Task-type names form a closed set; Register is the single place a new kind
// can be added.
const (
	TypeImagePull           = "image.pull"
	TypeImageBuild          = "image.build"
	TypeImageBuildUpload    = "image.build.upload"
	TypeImageSave           = "image.save"
	TypeImageLoad           = "image.load"
	TypeImageLoadURL        = "image.load.url"
	TypeStackAction         = "stack.action"
	TypeWorkspaceCompose    = "workspace.compose.action"
	TypeGitClone            = "git.clone"
	TypeGitSync             = "git.sync"
	TypeGitBuild            = "git.build"
	TypeContainerLogsExport = "container.logs.export"
)

// Deps carries what every handler needs: the resolved configuration and the
// sink its task writes progress to.
type Deps struct {
	Cfg  *config.DHConfig
	Logs *tasklog.Sink
}

// Register wires the full dispatch table into the registry
func Register(reg *task.Registry, deps *Deps) {
	reg.Register(TypeImagePull, deps.pullImage)
	reg.Register(TypeImageBuild, deps.buildImage)
	reg.Register(TypeImageBuildUpload, deps.buildImageFromUpload)
	reg.Register(TypeImageSave, deps.saveImage)
	reg.Register(TypeImageLoad, deps.loadImage)
	reg.Register(TypeImageLoadURL, deps.loadImageFromURL)
	reg.Register(TypeStackAction, deps.stackAction)
	reg.Register(TypeWorkspaceCompose, deps.workspaceComposeAction)
	reg.Register(TypeGitClone, deps.gitClone)
	reg.Register(TypeGitSync, deps.gitSync)
	reg.Register(TypeGitBuild, deps.buildFromWorkspace)
	reg.Register(TypeContainerLogsExport, deps.exportContainerLogs)
}

// logWriter returns the line sink bound to the running task's own log stream,
// addressed via the reserved params key the engine injects at enqueue time
func (d *Deps) logWriter(params models.JSONMap) command.LineSink {
	taskID := str(params, task.ParamTaskID)
	if taskID == "" {
		return nil
	}
	return command.LineSink(d.Logs.Writer(taskID))
}

func (d *Deps) commandTimeout() time.Duration {
	return time.Duration(d.Cfg.Tasks.CommandTimeoutSec) * time.Second
}

func (d *Deps) gitTimeout() time.Duration {
	return time.Duration(d.Cfg.Tasks.GitTimeoutSec) * time.Second
}

// runOrFail executes argv through the streaming runner and converts a
// non-zero exit into an error carrying the captured tail, which is what the
// failed record's error text should show an operator.
func runOrFail(argv []string, sink command.LineSink, opts command.Options) (*command.Result, error) {
	res, err := command.Run(argv, sink, opts)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%s exited with code %d:\n%s", argv[0], res.ExitCode, res.TailText())
	}
	return res, nil
}

func str(params models.JSONMap, key string) string {
	v, _ := params[key].(string)
	return v
}

func boolean(params models.JSONMap, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func requireStr(params models.JSONMap, key string) (string, error) {
	v := str(params, key)
	if v == "" {
		return "", fmt.Errorf("missing required param %q", key)
	}
	return v, nil
}

// baseEnv is the parent environment; handlers extend it per command
func baseEnv(extra ...string) []string {
	return append(os.Environ(), extra...)
}
