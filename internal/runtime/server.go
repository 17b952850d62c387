package runtime

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/extract"
	"github.com/rs/zerolog/log"
)

// ServerAdapter launches the application server named by webserver.properties.
type ServerAdapter struct {
	archive *archive.Handle
	workDir *extract.WorkDir
	loader  ClassLoader
	jvm     JVM

	plan ServerPlan
	dir  string
	env  []string
}

// ServerTokens derives the template values for an archive and work dir.
// An empty config falls back to the packaged webserver.xml entry URI.
func ServerTokens(h *archive.Handle, root string, s Settings) Tokens {
	config := s.ServerConfig
	if config == "" {
		config = h.URI(extract.ServerConfigEntry)
	}
	return Tokens{
		Warfile: h.Path(),
		Webroot: root,
		Port:    strconv.Itoa(s.Port),
		Host:    s.Host,
		Config:  config,
	}
}

// PlanServer reads the staged webserver.properties and resolves the launch.
// An unreadable file behaves like an empty one, so the missing mainclass is
// what gets reported.
func PlanServer(h *archive.Handle, wd *extract.WorkDir, s Settings) (ServerPlan, error) {
	path := wd.Path(extract.ServerPropertiesEntry)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("webserver properties unreadable")
	}
	props, err := LoadServerProperties(data)
	if err != nil {
		return ServerPlan{}, err
	}
	return ResolveServer(props, ServerTokens(h, wd.Root(), s), s.Argv)
}

func (a *ServerAdapter) Configure(s Settings) error {
	plan, err := PlanServer(a.archive, a.workDir, s)
	if err != nil {
		return err
	}
	a.plan = plan
	a.dir = s.Dir
	if a.dir == "" {
		a.dir = a.workDir.Root()
	}
	a.env = ChildEnv(os.Environ(), true, s.Env)
	log.Debug().
		Str("main_class", plan.MainClass).
		Strs("args", plan.Args).
		Int("props", len(plan.SystemProps)).
		Msg("server runtime configured")
	return nil
}

// Plan returns the resolved launch; zero until Configure succeeds.
func (a *ServerAdapter) Plan() ServerPlan { return a.plan }

// Run loads the main class from the isolated loader and blocks for the
// lifetime of the server.
func (a *ServerAdapter) Run(ctx context.Context) (Outcome, error) {
	if a.plan.MainClass == "" {
		return Outcome{}, fmt.Errorf("%w: server runtime not configured", ErrConfiguration)
	}
	class, err := a.loader.Load(a.plan.MainClass)
	if err != nil {
		return Outcome{}, &InvocationError{Cause: err}
	}
	log.Info().Str("main_class", class.Name).Str("source", class.Source).Msg("starting web server")
	return outcomeOf(a.jvm.Invoke(ctx, Invocation{
		Classpath:   a.loader.Classpath(),
		SystemProps: a.plan.SystemProps,
		MainClass:   class.Name,
		Args:        a.plan.Args,
		Dir:         a.dir,
		Env:         a.env,
	}))
}
