package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"dockhand/internal/command"
	"dockhand/internal/models"
)

var stackNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// composeFileNames are checked in order when resolving a stack directory
var composeFileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

// stackAction runs a compose lifecycle action against a named stack under the
// stacks directory.
// Params: name (required), action (up|down|restart|pull), force_recreate.
func (d *Deps) stackAction(params models.JSONMap) (models.JSONMap, error) {
	name, err := requireStr(params, "name")
	if err != nil {
		return nil, err
	}
	action, err := requireStr(params, "action")
	if err != nil {
		return nil, err
	}
	if !stackNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid stack name: %s", name)
	}

	composeFile, err := resolveComposeFile(d.Cfg.Paths.StacksDir, name)
	if err != nil {
		return nil, err
	}

	argv, err := composeActionArgs(composeArgs(composeFile, name, ""), action, boolean(params, "force_recreate"))
	if err != nil {
		return nil, err
	}

	res, err := runOrFail(argv, d.logWriter(params), command.Options{
		Env:     baseEnv(),
		Dir:     filepath.Dir(composeFile),
		Timeout: d.commandTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return models.JSONMap{"stack": name, "action": action, "exit_code": res.ExitCode}, nil
}

// workspaceComposeAction runs a compose action against a compose file inside
// a git workspace, with an explicit project name.
// Params: project_name, compose_file, action (required); project_directory,
// force_recreate (optional).
func (d *Deps) workspaceComposeAction(params models.JSONMap) (models.JSONMap, error) {
	projectName, err := requireStr(params, "project_name")
	if err != nil {
		return nil, err
	}
	composeFile, err := requireStr(params, "compose_file")
	if err != nil {
		return nil, err
	}
	action, err := requireStr(params, "action")
	if err != nil {
		return nil, err
	}
	if !stackNameRe.MatchString(projectName) {
		return nil, fmt.Errorf("invalid stack name: %s", projectName)
	}

	composePath, err := filepath.Abs(composeFile)
	if err != nil {
		return nil, err
	}
	projectDir := str(params, "project_directory")
	if projectDir != "" {
		if projectDir, err = filepath.Abs(projectDir); err != nil {
			return nil, err
		}
	}

	argv, err := composeActionArgs(composeArgs(composePath, projectName, projectDir), action, boolean(params, "force_recreate"))
	if err != nil {
		return nil, err
	}

	res, err := runOrFail(argv, d.logWriter(params), command.Options{
		Env:     baseEnv(),
		Dir:     projectDir,
		Timeout: d.commandTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return models.JSONMap{
		"stack":        projectName,
		"action":       action,
		"compose_file": composePath,
		"exit_code":    res.ExitCode,
	}, nil
}

func composeArgs(composeFile, projectName, projectDir string) []string {
	argv := []string{"docker", "compose", "-f", composeFile, "-p", projectName}
	if projectDir != "" {
		argv = append(argv, "--project-directory", projectDir)
	}
	return argv
}

// composeActionArgs maps an action name onto the compose command line
func composeActionArgs(base []string, action string, forceRecreate bool) ([]string, error) {
	switch action {
	case "up":
		argv := append(base, "up", "-d")
		if forceRecreate {
			argv = append(argv, "--force-recreate")
		}
		return argv, nil
	case "down":
		return append(base, "down"), nil
	case "restart":
		return append(base, "restart"), nil
	case "pull":
		return append(base, "pull"), nil
	default:
		return nil, fmt.Errorf("unsupported action %s", action)
	}
}

// resolveComposeFile finds the stack's compose file under the stacks root
func resolveComposeFile(stacksDir, name string) (string, error) {
	root, err := filepath.Abs(stacksDir)
	if err != nil {
		return "", err
	}
	stackDir := filepath.Join(root, name)
	for _, candidate := range composeFileNames {
		path := filepath.Join(stackDir, candidate)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("stack not found: %s", name)
}
