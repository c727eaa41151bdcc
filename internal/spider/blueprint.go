package spider

import (
	"sort"

	"gitspider/internal/config"
	"gitspider/internal/github"
)

// Blueprint is the final structured summary of a repository: its file tree,
// target-directory files, verified key-file contents, and crawl diagnostics.
// It is assembled exactly once, at the end of a crawl, and never mutated
// afterward.
type Blueprint struct {
	Repo                 string             `json:"repo"`
	URL                  string             `json:"url"`
	Branch               string             `json:"branch"`
	FileTree             []string           `json:"file_tree"`
	TargetDirectoryFiles []string           `json:"target_directory_files"`
	KeyFiles             map[string]KeyFile `json:"key_files"`
	Errors               *BlueprintErrors   `json:"errors,omitempty"`
	Stats                BlueprintStats     `json:"stats"`
	Debug                *BlueprintDebug    `json:"debug,omitempty"`
}

// KeyFile is one verified key-file entry: its cleaned path and its content,
// already validated and capped.
type KeyFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// BlueprintErrors lists the candidates no branch could serve.
type BlueprintErrors struct {
	FilesNotFound []string `json:"files_not_found"`
}

// BlueprintStats summarizes what the crawl covered.
type BlueprintStats struct {
	TotalFilesInTree         int `json:"total_files_in_tree"`
	FilesInTargetDirs        int `json:"files_in_target_dirs"`
	TotalKeyFilesFound       int `json:"total_key_files_found"`
	TotalKeyFilesWithContent int `json:"total_key_files_with_content"`
	FilesFailed              int `json:"files_failed"`
	DirectoriesCrawled       int `json:"directories_crawled"`
}

// BlueprintDebug carries a raw markup excerpt when the crawl came back with
// nothing, so markup drift can be diagnosed from the output alone.
type BlueprintDebug struct {
	Message     string `json:"message"`
	HTMLExcerpt string `json:"html_excerpt"`
}

// sessionState is the frozen input to assembly: everything a finished crawl
// accumulated, detached from the session's locks.
type sessionState struct {
	repo         github.RepositoryRef
	branch       string
	fileTree     []string
	keyFiles     []KeyFileCandidate
	visitedCount int
	debugHTML    string
}

// assembleBlueprint is a pure function from accumulated crawl state to the
// final blueprint: re-clean and validate every path, deduplicate and sort the
// tree, partition candidates into verified and failed, and compute stats.
func assembleBlueprint(rules *Ruleset, cfg config.SpiderConfig, st sessionState) *Blueprint {
	keyFiles := make(map[string]KeyFile)
	var failed []string
	for _, cand := range st.keyFiles {
		clean := rules.Clean(cand.Path)
		if cand.Content != "" && ValidContent(cand.Content) {
			keyFiles[clean] = KeyFile{
				Path:    clean,
				Content: truncate(cand.Content, cfg.BlueprintContentCap),
			}
		} else {
			failed = append(failed, clean)
		}
	}

	seen := make(map[string]bool, len(st.fileTree))
	tree := make([]string, 0, len(st.fileTree))
	for _, p := range st.fileTree {
		clean := rules.Clean(p)
		if clean == "" || !rules.IsValid(clean) || seen[clean] {
			continue
		}
		seen[clean] = true
		tree = append(tree, clean)
	}
	sort.Strings(tree)

	var targetFiles []string
	for _, p := range tree {
		if rules.IsInTargetDir(p) {
			targetFiles = append(targetFiles, p)
		}
	}

	bp := &Blueprint{
		Repo:                 st.repo.String(),
		URL:                  st.repo.CanonicalURL,
		Branch:               st.branch,
		FileTree:             tree,
		TargetDirectoryFiles: targetFiles,
		KeyFiles:             keyFiles,
		Stats: BlueprintStats{
			TotalFilesInTree:         len(tree),
			FilesInTargetDirs:        len(targetFiles),
			TotalKeyFilesFound:       len(st.keyFiles),
			TotalKeyFilesWithContent: len(keyFiles),
			FilesFailed:              len(failed),
			DirectoriesCrawled:       st.visitedCount,
		},
	}
	if len(failed) > 0 {
		bp.Errors = &BlueprintErrors{FilesNotFound: failed}
	}
	if bp.Stats.TotalKeyFilesFound == 0 && st.debugHTML != "" {
		bp.Debug = &BlueprintDebug{
			Message:     "No files found. Raw HTML excerpt from crawl below.",
			HTMLExcerpt: truncate(st.debugHTML, cfg.DebugExcerptCap),
		}
	}
	return bp
}
