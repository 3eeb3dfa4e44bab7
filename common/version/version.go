package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"text/template"
)

// Set with -ldflags "-X github.com/avmdbg/avmdbg/common/version.version=1.2.3".
var version = ""

type Info struct {
	Version  string
	Commit   string
	Modified bool
	OS       string
	Arch     string
}

var GetInfo = sync.OnceValue(func() Info {
	info := Info{Version: version, Commit: "<unknown>", OS: runtime.GOOS, Arch: runtime.GOARCH}
	if build, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && build.Main.Version != "(devel)" {
			info.Version = build.Main.Version
		}
		for _, s := range build.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	info.Version = strings.TrimPrefix(info.Version, "v")
	if info.Version == "" {
		info.Version = "devel"
	}
	return info
})

var versionTmpl = template.Must(template.New("version").Parse(`{{ .Title }}
 Version:	{{ .Info.Version }}
 OS/Arch:	{{ .Info.OS }}/{{ .Info.Arch }}
 Git commit:	{{ .Info.Commit }}{{ if .Info.Modified }} (modified){{ end }}`))

func BuildVersionString(appTitle string) string {
	return format(appTitle, GetInfo())
}

func format(appTitle string, info Info) string {
	var sb strings.Builder
	if err := versionTmpl.Execute(&sb, map[string]any{"Title": appTitle, "Info": info}); err != nil {
		panic(err)
	}
	return sb.String()
}
