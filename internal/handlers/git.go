package handlers

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dockhand/internal/command"
	"dockhand/internal/models"
	"dockhand/internal/task"
)

const workspaceMetaFile = ".dockhand-meta.json"

type workspaceMeta struct {
	RepoURL   string `json:"repo_url"`
	Branch    string `json:"branch,omitempty"`
	CreatedAt string `json:"created_at"`
}

// gitClone clones a repository into a fresh workspace directory. The access
// token, when given, is embedded into the clone URL and registered as a
// redaction secret so it never reaches the task log.
// Params: repo_url (required), branch, token.
func (d *Deps) gitClone(params models.JSONMap) (models.JSONMap, error) {
	repoURL, err := requireStr(params, "repo_url")
	if err != nil {
		return nil, err
	}
	branch := str(params, "branch")
	token := str(params, "token")

	workspaceID := newWorkspaceID()
	workspacePath := filepath.Join(d.Cfg.Paths.WorkspacesDir, workspaceID)
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return nil, err
	}

	cloneURL := repoURL
	if token != "" {
		if cloneURL, err = injectToken(repoURL, token); err != nil {
			return nil, err
		}
	}

	argv := []string{"git", "clone", "--depth", "1"}
	if branch != "" {
		argv = append(argv, "--branch", branch)
	}
	argv = append(argv, "--progress", cloneURL, workspacePath)

	if _, err := runOrFail(argv, d.logWriter(params), command.Options{
		Env:       baseEnv("GIT_TERMINAL_PROMPT=0"),
		Timeout:   d.gitTimeout(),
		TailLines: 80,
		Secrets:   []string{token},
	}); err != nil {
		// a half-written workspace is worse than none
		_ = os.RemoveAll(workspacePath)
		return nil, fmt.Errorf("git clone failed: %w", err)
	}

	meta := workspaceMeta{
		RepoURL:   repoURL,
		Branch:    branch,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if data, err := json.Marshal(meta); err == nil {
		_ = os.WriteFile(filepath.Join(workspacePath, workspaceMetaFile), data, 0o644)
	}

	return models.JSONMap{
		"workspace_id":   workspaceID,
		"workspace_path": workspacePath,
		"dockerfiles":    findDockerfiles(workspacePath),
	}, nil
}

// gitSync fast-forwards an existing workspace to its remote.
// Params: workspace_id (required).
func (d *Deps) gitSync(params models.JSONMap) (models.JSONMap, error) {
	workspacePath, workspaceID, err := d.workspacePath(params)
	if err != nil {
		return nil, err
	}

	if _, err := runOrFail(
		[]string{"git", "pull", "--ff-only"},
		d.logWriter(params),
		command.Options{
			Env:       baseEnv("GIT_TERMINAL_PROMPT=0"),
			Dir:       workspacePath,
			Timeout:   d.gitTimeout(),
			TailLines: 80,
		},
	); err != nil {
		return nil, fmt.Errorf("git sync failed: %w", err)
	}

	return models.JSONMap{
		"workspace_id": workspaceID,
		"dockerfiles":  findDockerfiles(workspacePath),
	}, nil
}

// buildFromWorkspace builds an image out of a cloned workspace, optionally
// from a sub-directory context, and by default removes the workspace when the
// build finishes.
// Params: workspace_id, tag (required); context_path, dockerfile, no_cache,
// pull, cleanup_after (default true).
func (d *Deps) buildFromWorkspace(params models.JSONMap) (models.JSONMap, error) {
	workspacePath, _, err := d.workspacePath(params)
	if err != nil {
		return nil, err
	}
	tag, err := requireStr(params, "tag")
	if err != nil {
		return nil, err
	}

	cleanup := true
	if v, ok := params["cleanup_after"].(bool); ok {
		cleanup = v
	}
	defer func() {
		if cleanup {
			_ = os.RemoveAll(workspacePath)
		}
	}()

	context := workspacePath
	if rel := str(params, "context_path"); rel != "" && rel != "." {
		context = filepath.Join(workspacePath, rel)
	}

	argv := buildArgs(tag, context, str(params, "dockerfile"), boolean(params, "no_cache"), boolean(params, "pull"))
	if _, err := runOrFail(
		argv,
		d.logWriter(params),
		command.Options{Env: baseEnv(), Timeout: d.commandTimeout()},
	); err != nil {
		return nil, err
	}
	return models.JSONMap{"tag": tag}, nil
}

// workspacePath validates the workspace_id param and resolves its directory
func (d *Deps) workspacePath(params models.JSONMap) (string, string, error) {
	workspaceID, err := requireStr(params, "workspace_id")
	if err != nil {
		return "", "", err
	}
	if err := validateWorkspaceID(workspaceID); err != nil {
		return "", "", err
	}
	path := filepath.Join(d.Cfg.Paths.WorkspacesDir, workspaceID)
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return "", "", fmt.Errorf("workspace not found: %s", workspaceID)
	}
	return path, workspaceID, nil
}

func validateWorkspaceID(workspaceID string) error {
	if len(workspaceID) != 32 {
		return fmt.Errorf("invalid workspace id: %s", workspaceID)
	}
	for _, r := range workspaceID {
		isDigit := r >= '0' && r <= '9'
		isLower := r >= 'a' && r <= 'z'
		if !isDigit && !isLower {
			return fmt.Errorf("invalid workspace id: %s", workspaceID)
		}
	}
	return nil
}

// injectToken embeds a personal access token into an HTTPS git URL
func injectToken(repoURL, token string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repo url: %w", err)
	}
	parsed.User = url.UserPassword("x-token", token)
	return parsed.String(), nil
}

// findDockerfiles lists Dockerfile* paths relative to the workspace root,
// skipping the git metadata directory
func findDockerfiles(root string) []string {
	var found []string
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), "Dockerfile") {
			if rel, err := filepath.Rel(root, path); err == nil {
				found = append(found, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	sort.Strings(found)
	return found
}

func newWorkspaceID() string {
	return task.NewID()
}
