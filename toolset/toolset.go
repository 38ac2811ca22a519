package toolset

import (
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/tool"
)

// Tool names.
const (
	ScanFiles  = "scan_files"
	ReadFile   = "read_file"
	SearchCode = "search_code"
	WebSearch  = "web_search"
	Analyze    = "analyze"
	Finish     = "finish"
)

// Options configure the built-in tools.
type Options struct {
	// Search enables web_search when set.
	Search SearchProvider
	// Gateway enables analyze when set.
	Gateway gateway.Gateway
	// MaxFileBytes skips larger files in read and search.
	MaxFileBytes int64
	// MaxReadLines bounds one read_file window.
	MaxReadLines int
}

func defaultOptions() Options {
	return Options{
		MaxFileBytes: 1 << 20,
		MaxReadLines: 400,
	}
}

// Register adds the built-in tools to reg. web_search and analyze are only
// registered when their collaborators are configured.
func Register(reg *tool.Registry, optFns ...func(o *Options)) error {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	fs := &fileTools{opts: opts}

	tools := []*tool.Tool{
		tool.New(ScanFiles,
			"List repository files whose name or relative path matches a glob pattern.",
			fs.scan),
		tool.New(ReadFile,
			"Read a window of lines from a repository file.",
			fs.read),
		tool.New(SearchCode,
			"Search repository files for a regular expression and return matching lines.",
			fs.search),
	}

	if opts.Search != nil {
		tools = append(tools, newWebSearch(opts.Search))
	}
	if opts.Gateway != nil {
		tools = append(tools, newAnalyze(opts.Gateway, fs))
	}

	return reg.Register(tools...)
}
