package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/ld-agent/ld-agent-go/pkg/depaudit"
	"github.com/ld-agent/ld-agent-go/pkg/envtable"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
	"github.com/ld-agent/ld-agent-go/pkg/version"
)

// maxBodySize caps request bodies. Invocation payloads and env
// snapshots are small; anything larger is a client mistake.
const maxBodySize = 1 << 20

type unitCounts struct {
	Loaded int `json:"loaded"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	session := s.linker.Session()
	loaded, warned, failed := session.Counts()

	s.writeJSONResponse(r.Context(), w, map[string]any{
		"session_id":  session.ID,
		"root":        session.Root,
		"started_at":  session.StartedAt,
		"duration_ms": session.Duration.Milliseconds(),
		"counts":      unitCounts{Loaded: loaded, Warned: warned, Failed: failed},
		"units":       session.Units,
		"diagnostics": session.Diagnostics,
		"conflicts":   s.linker.Registry().Conflicts(),
	})
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	unit := s.linker.Session().Unit(id)
	if unit == nil {
		s.writeErrorResponse(r.Context(), w, http.StatusNotFound, fmt.Sprintf("unit %s not found", id), nil)
		return
	}
	s.writeJSONResponse(r.Context(), w, unit)
}

func (s *Server) handleListSymbols(w http.ResponseWriter, r *http.Request) {
	categories := r.URL.Query()["category"]
	symbols := slices.Collect(s.linker.Registry().Symbols(categories...))
	if symbols == nil {
		symbols = []*captypes.SymbolDescriptor{}
	}

	s.writeJSONResponse(r.Context(), w, map[string]any{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

func (s *Server) handleResolveSymbol(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	desc, ok := s.linker.Registry().Resolve(name)
	if !ok {
		s.writeErrorResponse(r.Context(), w, http.StatusNotFound, fmt.Sprintf("symbol %s is not registered", name), nil)
		return
	}
	s.writeJSONResponse(r.Context(), w, desc)
}

// handleInvoke runs a registered symbol with the JSON body as its
// arguments. Resolution misses map to 404 and schema rejections to 400
// before any subprocess is spawned; failures of the unit itself come
// back as 502 since the server is only relaying them.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	reg := s.linker.Registry()
	if _, ok := reg.Resolve(name); !ok {
		s.writeErrorResponse(ctx, w, http.StatusNotFound, fmt.Sprintf("symbol %s is not registered", name), nil)
		return
	}

	args, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	if err := reg.ValidateArgs(name, args); err != nil {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "invalid arguments", err)
		return
	}

	start := time.Now()
	out, err := reg.Invoke(ctx, name, args)
	if err != nil {
		s.writeErrorResponse(ctx, w, http.StatusBadGateway, "invocation failed", err)
		return
	}

	response := map[string]any{
		"qualified_name": name,
		"duration_ms":    time.Since(start).Milliseconds(),
	}
	if json.Valid(out) {
		response["output"] = json.RawMessage(out)
	} else {
		response["output"] = string(out)
	}
	s.writeJSONResponse(ctx, w, response)
}

func (s *Server) handleEnv(w http.ResponseWriter, r *http.Request) {
	table := s.linker.EnvTable()
	s.writeJSONResponse(r.Context(), w, map[string]any{
		"vars":      table.Vars(),
		"conflicts": table.Conflicts(),
		"stats":     table.Stats(),
	})
}

func (s *Server) handleEnvTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.linker.EnvTable().Template())
}

// handleEnvValidate checks required env vars against the snapshot in
// the request body, or against the server's own environment when the
// body is empty.
func (s *Server) handleEnvValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Env map[string]string `json:"env"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && err != io.EOF {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	env := req.Env
	if env == nil {
		env = envtable.OSEnviron()
	}

	missing := s.linker.EnvTable().MissingRequired(env)
	if missing == nil {
		missing = []*envtable.Var{}
	}
	s.writeJSONResponse(ctx, w, map[string]any{
		"ok":      len(missing) == 0,
		"missing": missing,
	})
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	audit := s.linker.DepAudit()
	s.writeJSONResponse(r.Context(), w, map[string]any{
		"requirements": audit.Requirements(),
		"conflicts":    audit.Conflicts(),
		"stats":        audit.Stats(),
		"manifest":     audit.ConsolidatedManifest(),
	})
}

// handleDepsCheck audits the aggregated requirements against an
// installed-package inventory supplied in the request body.
func (s *Server) handleDepsCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Installed map[string]string `json:"installed"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && err != io.EOF {
		s.writeErrorResponse(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	findings := s.linker.DepAudit().Check(req.Installed)
	depaudit.SortFindings(findings)

	ok := true
	for _, f := range findings {
		if f.Status != depaudit.StatusOK {
			ok = false
			break
		}
	}
	s.writeJSONResponse(ctx, w, map[string]any{
		"ok":       ok,
		"findings": findings,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.linker.Reload(ctx); err != nil {
		s.writeErrorResponse(ctx, w, http.StatusInternalServerError, "reload failed", err)
		return
	}

	session := s.linker.Session()
	loaded, warned, failed := session.Counts()
	s.writeJSONResponse(ctx, w, map[string]any{
		"session_id": session.ID,
		"counts":     unitCounts{Loaded: loaded, Warned: warned, Failed: failed},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var rss uint64
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			rss = mem.RSS
		}
	}

	session := s.linker.Session()
	loaded, warned, failed := session.Counts()
	s.writeJSONResponse(r.Context(), w, map[string]any{
		"status":     "ok",
		"version":    version.Version,
		"pid":        os.Getpid(),
		"rss_bytes":  rss,
		"session_id": session.ID,
		"counts":     unitCounts{Loaded: loaded, Warned: warned, Failed: failed},
	})
}
