package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dockhand/internal/command"
	"dockhand/internal/models"
)

// pullImage pulls an image, streaming registry progress into the task log.
// Params: image (required), tag (optional).
func (d *Deps) pullImage(params models.JSONMap) (models.JSONMap, error) {
	image, err := requireStr(params, "image")
	if err != nil {
		return nil, err
	}
	ref := imageRef(image, str(params, "tag"))

	if _, err := runOrFail(
		[]string{"docker", "pull", ref},
		d.logWriter(params),
		command.Options{Env: baseEnv(), Timeout: d.commandTimeout()},
	); err != nil {
		return nil, err
	}
	return models.JSONMap{"image": ref}, nil
}

// buildImage builds an image from a local context directory or a remote git
// URL (docker handles remote contexts natively).
// Params: tag (required), path or git_url, dockerfile, no_cache, pull.
func (d *Deps) buildImage(params models.JSONMap) (models.JSONMap, error) {
	tag, err := requireStr(params, "tag")
	if err != nil {
		return nil, err
	}
	context := str(params, "path")
	if context == "" {
		context = str(params, "git_url")
	}
	if context == "" {
		return nil, fmt.Errorf("missing required param %q or %q", "path", "git_url")
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

// buildArgs assembles the docker build command line
func buildArgs(tag, context, dockerfile string, noCache, pull bool) []string {
	argv := []string{"docker", "build", "-t", tag}
	if dockerfile != "" && dockerfile != "Dockerfile" {
		argv = append(argv, "-f", dockerfile)
	}
	if noCache {
		argv = append(argv, "--no-cache")
	}
	if pull {
		argv = append(argv, "--pull")
	}
	return append(argv, context)
}

// buildImageFromUpload builds an image from an uploaded build-context archive.
// The upload and its extracted copy are removed whether or not the build
// succeeded.
// Params: file_path, tag (required); context_path, dockerfile, no_cache, pull.
func (d *Deps) buildImageFromUpload(params models.JSONMap) (models.JSONMap, error) {
	filePath, err := requireStr(params, "file_path")
	if err != nil {
		return nil, err
	}
	tag, err := requireStr(params, "tag")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(filePath) }()

	workDir, err := os.MkdirTemp("", "dockhand-build-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	if _, err := runOrFail(
		extractArgs(filePath, workDir),
		d.logWriter(params),
		command.Options{Env: baseEnv(), Timeout: d.commandTimeout()},
	); err != nil {
		return nil, fmt.Errorf("could not extract build context: %w", err)
	}

	context := buildContextDir(workDir, str(params, "context_path"))
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

// extractArgs picks the unpack command for the archive name; tar detects its
// own compression
func extractArgs(archive, dir string) []string {
	if strings.HasSuffix(archive, ".zip") {
		return []string{"unzip", "-q", archive, "-d", dir}
	}
	return []string{"tar", "-xf", archive, "-C", dir}
}

// buildContextDir resolves the build context inside the extracted tree. An
// archive whose content sits in a single top-level directory is unwrapped.
func buildContextDir(workDir, rel string) string {
	if rel != "" && rel != "." {
		return filepath.Join(workDir, rel)
	}
	entries, err := os.ReadDir(workDir)
	if err == nil && len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(workDir, entries[0].Name())
	}
	return workDir
}

// saveImage exports an image tarball into the exports directory.
// Params: image (required), filename (required, basename only).
func (d *Deps) saveImage(params models.JSONMap) (models.JSONMap, error) {
	image, err := requireStr(params, "image")
	if err != nil {
		return nil, err
	}
	filename, err := requireStr(params, "filename")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(d.Cfg.Paths.ExportsDir, 0o755); err != nil {
		return nil, err
	}
	output := filepath.Join(d.Cfg.Paths.ExportsDir, filepath.Base(filename))

	if _, err := runOrFail(
		[]string{"docker", "save", "-o", output, image},
		d.logWriter(params),
		command.Options{Env: baseEnv(), Timeout: d.commandTimeout()},
	); err != nil {
		return nil, err
	}

	fi, err := os.Stat(output)
	if err != nil {
		return nil, fmt.Errorf("image saved but export file missing: %w", err)
	}
	return models.JSONMap{"file": output, "size": fi.Size()}, nil
}

// loadImage loads an image from an uploaded tarball. The upload is removed
// afterwards whether or not the load succeeded.
// Params: file_path (required).
func (d *Deps) loadImage(params models.JSONMap) (models.JSONMap, error) {
	filePath, err := requireStr(params, "file_path")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(filePath) }()

	res, err := runOrFail(
		[]string{"docker", "load", "-i", filePath},
		d.logWriter(params),
		command.Options{Env: baseEnv(), Timeout: d.commandTimeout()},
	)
	if err != nil {
		return nil, err
	}

	// docker load reports "Loaded image: ..." on its last line
	loaded := ""
	if tail := res.Tail; len(tail) > 0 {
		loaded = strings.TrimPrefix(tail[len(tail)-1], "Loaded image: ")
	}
	return models.JSONMap{"loaded": loaded}, nil
}

// loadImageFromURL downloads an image tarball over HTTP(S) and loads it; the
// temporary download is removed by the load step.
// Params: url (required).
func (d *Deps) loadImageFromURL(params models.JSONMap) (models.JSONMap, error) {
	rawURL, err := requireStr(params, "url")
	if err != nil {
		return nil, err
	}
	if err := validateDownloadURL(rawURL); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(d.Cfg.Paths.UploadsDir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(d.Cfg.Paths.UploadsDir, "download-*.tar")
	if err != nil {
		return nil, err
	}

	if write := d.logWriter(params); write != nil {
		write("downloading " + rawURL)
	}
	if err := downloadFile(tmp, rawURL, d.commandTimeout()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, err
	}

	next := params.Clone()
	next["file_path"] = tmp.Name()
	return d.loadImage(next)
}

func validateDownloadURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid download url: %s", raw)
	}
	return nil
}

func downloadFile(dst *os.File, rawURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(rawURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

// exportContainerLogs captures a container's recent log lines into a file
// under the exports directory.
// Params: container_id (required), filename (required), tail (optional, default 1000).
func (d *Deps) exportContainerLogs(params models.JSONMap) (models.JSONMap, error) {
	containerID, err := requireStr(params, "container_id")
	if err != nil {
		return nil, err
	}
	filename, err := requireStr(params, "filename")
	if err != nil {
		return nil, err
	}

	tailLines := 1000
	if v, ok := params["tail"].(float64); ok && v > 0 {
		tailLines = int(v)
	}

	res, err := runOrFail(
		[]string{"docker", "logs", "--tail", fmt.Sprint(tailLines), "--timestamps", containerID},
		nil, // captured, not streamed: the export file is the deliverable
		command.Options{Env: baseEnv(), Timeout: d.commandTimeout(), TailLines: tailLines + 1},
	)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(d.Cfg.Paths.ExportsDir, 0o755); err != nil {
		return nil, err
	}
	output := filepath.Join(d.Cfg.Paths.ExportsDir, filepath.Base(filename))

	// drop the echoed "$ docker logs ..." line; the file should hold log
	// content only
	lines := res.Tail
	if len(lines) > 0 && strings.HasPrefix(lines[0], "$ ") {
		lines = lines[1:]
	}
	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}
	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return nil, err
	}
	return models.JSONMap{"file": output, "size": int64(len(text))}, nil
}

func imageRef(image, tag string) string {
	if tag == "" || strings.Contains(image, ":") {
		return image
	}
	return image + ":" + tag
}
