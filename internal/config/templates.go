package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter file for kind: a scripting or server manifest,
// or the webserver.properties a server archive carries.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "scripting":
		return scriptingTemplate, nil
	case "server":
		return serverTemplate, nil
	case "webserver":
		return webserverTemplate, nil
	default:
		return "", fmt.Errorf("unknown template kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o644)
}

const scriptingTemplate = `mode = "scripting"
cache = false
jvm_args = ["-Xss2048k"]
module_prefix = "META-INF/lib/"
module_suffix = ".jar"

[env]
RACK_ENV = "production"
`

const serverTemplate = `mode = "server"
port = 8080
host = "0.0.0.0"
jvm_args = ["-Xmx512m"]
`

const webserverTemplate = `mainclass = org.eclipse.jetty.runner.Runner
args = args0,args1,args2,args3,args4
props = jetty.home
args0 = --port
args1 = {{port}}
args2 = --config
args3 = {{config}}
args4 = {{warfile}}
jetty.home = {{webroot}}
`
