package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/errwatch/errwatch/internal/cluster"
	"github.com/errwatch/errwatch/internal/controller"
	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/options"
	"github.com/errwatch/errwatch/internal/pkg/evql"
	"github.com/errwatch/errwatch/internal/report"
	"github.com/errwatch/errwatch/internal/store"
	"github.com/errwatch/errwatch/internal/timex"
)

// UserSession represents a logged-in dashboard user session.
type UserSession struct {
	Token      string
	Username   string
	ExpireTime time.Time
}

// Server is the HTTP front of the report engine and the record store.
type Server struct {
	datasets   *Datasets
	records    *store.Store
	metaStore  *controller.Store
	catalog    *options.Catalog
	webDir     string
	zone       *time.Location
	sessions   map[string]UserSession
	sessionsMu sync.RWMutex
	srv        *http.Server
	parser     fastjson.ParserPool
	clusterAgg *cluster.Aggregator
}

func NewServer(ds *Datasets, records *store.Store, ms *controller.Store, catalog *options.Catalog, webDir string, zone *time.Location) *Server {
	return &Server{
		datasets:  ds,
		records:   records,
		metaStore: ms,
		catalog:   catalog,
		webDir:    webDir,
		zone:      zone,
		sessions:  make(map[string]UserSession),
	}
}

// Start runs the HTTP server.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/system/status", s.handleSystemStatus)
	mux.HandleFunc("/api/system/init", s.handleSystemInit)
	mux.Handle("/api/system/config", s.AuthMiddleware(http.HandlerFunc(s.handleSystemConfig)))

	// User management (SuperAdmin)
	mux.Handle("/api/users", s.AuthMiddleware(http.HandlerFunc(s.handleUsers)))
	mux.Handle("/api/users/", s.AuthMiddleware(http.HandlerFunc(s.handleUserItem)))

	// Token management (Authenticated)
	mux.Handle("/api/tokens", s.AuthMiddleware(http.HandlerFunc(s.handleTokens)))
	mux.Handle("/api/tokens/", s.AuthMiddleware(http.HandlerFunc(s.handleTokenItem)))

	// Dataset and report
	mux.Handle("/api/dataset", s.AuthMiddleware(http.HandlerFunc(s.handleDatasetUpload)))
	mux.Handle("/api/report", s.AuthMiddleware(http.HandlerFunc(s.handleReport)))
	mux.Handle("/api/export", s.AuthMiddleware(http.HandlerFunc(s.handleExport)))
	mux.Handle("/api/options", s.AuthMiddleware(http.HandlerFunc(s.handleOptions)))
	mux.Handle("/api/search", s.AuthMiddleware(http.HandlerFunc(s.handleSearch)))
	mux.Handle("/api/stats", s.AuthMiddleware(http.HandlerFunc(s.handleStats)))

	// Record store (append form)
	mux.Handle("/api/records", s.AuthMiddleware(http.HandlerFunc(s.handleRecords)))
	mux.Handle("/api/records/last", s.AuthMiddleware(http.HandlerFunc(s.handleRecordLast)))

	// Console mode: fan out to data nodes
	if s.clusterAgg != nil {
		mux.Handle("/api/cluster/report", s.AuthMiddleware(http.HandlerFunc(s.handleClusterReport)))
		mux.Handle("/api/cluster/stats", s.AuthMiddleware(http.HandlerFunc(s.handleClusterStats)))
	}

	// Static file serving for web directory
	if s.webDir != "" {
		fs := http.FileServer(http.Dir(s.webDir))
		mux.Handle("/", fs)
	}

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// AuthMiddleware checks for a valid token in the Authorization header.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="errwatch"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		// Branch A: API key (from meta)
		if apiToken, exists := s.metaStore.GetTokenByValue(token); exists {
			if r.Method != http.MethodGet && apiToken.Type != "write" {
				http.Error(w, "Forbidden: write token required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		// Branch B: Web session
		s.sessionsMu.RLock()
		session, exists := s.sessions[token]
		s.sessionsMu.RUnlock()

		if exists {
			if time.Now().Before(session.ExpireTime) {
				user, exists := s.metaStore.GetUser(session.Username)
				if !exists {
					http.Error(w, "User no longer exists", http.StatusUnauthorized)
					return
				}

				// Role check for specific routes
				if strings.HasPrefix(r.URL.Path, "/api/users") {
					if user.Role != "super_admin" {
						http.Error(w, "Forbidden: SuperAdmin required", http.StatusForbidden)
						return
					}
				}

				next.ServeHTTP(w, r)
				return
			}
			s.sessionsMu.Lock()
			delete(s.sessions, token)
			s.sessionsMu.Unlock()
		}

		w.Header().Set("WWW-Authenticate", `Bearer realm="errwatch"`)
		http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
	})
}

// handleSystemStatus returns the system initialization status.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]bool{
		"initialized": s.metaStore.IsInitialized(),
	})
}

// handleSystemInit initializes the system with the first SuperAdmin.
func (s *Server) handleSystemInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.metaStore.IsInitialized() {
		http.Error(w, "System already initialized", http.StatusBadRequest)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}

	if err := s.metaStore.InitializeSystem(req.Username, req.Password); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.createSession(w, req.Username, "super_admin")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, exists := s.metaStore.GetUser(req.Username)
	if !exists {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	s.createSession(w, req.Username, user.Role)
}

func (s *Server) createSession(w http.ResponseWriter, username, role string) {
	b := make([]byte, 16)
	rand.Read(b)
	sessionToken := hex.EncodeToString(b)

	s.sessionsMu.Lock()
	s.sessions[sessionToken] = UserSession{
		Token:      sessionToken,
		Username:   username,
		ExpireTime: time.Now().Add(24 * time.Hour),
	}
	s.sessionsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":    sessionToken,
		"username": username,
		"role":     role,
	})
}

func (s *Server) handleSystemConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := s.metaStore.GetData()
		json.NewEncoder(w).Encode(data.Config)
		return
	}

	if r.Method == http.MethodPost {
		var cfg controller.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if cfg.DefaultZone != "" {
			if _, err := time.LoadLocation(cfg.DefaultZone); err != nil {
				http.Error(w, "Unknown time zone", http.StatusBadRequest)
				return
			}
		}
		if cfg.BackupRetention != "" {
			if _, err := time.ParseDuration(cfg.BackupRetention); err != nil {
				http.Error(w, "Invalid retention duration format", http.StatusBadRequest)
				return
			}
		}
		if cfg.DefaultTopN != 0 && (cfg.DefaultTopN < report.TopNMin || cfg.DefaultTopN > report.TopNMax) {
			http.Error(w, fmt.Sprintf("default_top_n must be between %d and %d", report.TopNMin, report.TopNMax), http.StatusBadRequest)
			return
		}

		if err := s.metaStore.UpdateConfig(cfg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := s.metaStore.GetData()
		// Strip hashes for security
		users := make([]controller.User, len(data.Users))
		for i, u := range data.Users {
			users[i] = u
			users[i].PasswordHash = ""
		}
		json.NewEncoder(w).Encode(users)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		err := s.metaStore.AddUser(controller.User{
			Username:     req.Username,
			PasswordHash: string(hash),
			Role:         req.Role,
			CreatedAt:    time.Now().Unix(),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}
}

func (s *Server) handleUserItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	username := parts[len(parts)-1]

	if r.Method == http.MethodDelete {
		if err := s.metaStore.DeleteUser(username); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := s.metaStore.GetData()
		json.NewEncoder(w).Encode(data.Tokens)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		b := make([]byte, 16)
		rand.Read(b)
		tokenVal := "ew-" + hex.EncodeToString(b)

		idBytes := make([]byte, 8)
		rand.Read(idBytes)
		id := hex.EncodeToString(idBytes)

		// Get creator from session
		authHeader := r.Header.Get("Authorization")
		sessionToken := strings.TrimPrefix(authHeader, "Bearer ")
		s.sessionsMu.RLock()
		session := s.sessions[sessionToken]
		s.sessionsMu.RUnlock()

		err := s.metaStore.AddToken(controller.APIToken{
			ID:        id,
			Name:      req.Name,
			Token:     tokenVal,
			Type:      req.Type,
			CreatedBy: session.Username,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": tokenVal, "id": id})
		return
	}
}

func (s *Server) handleTokenItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	id := parts[len(parts)-1]

	if r.Method == http.MethodDelete {
		if err := s.metaStore.DeleteToken(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
}

// handleDatasetUpload replaces the active table with an uploaded CSV.
func (s *Server) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	rows, dropped, err := s.datasets.LoadUpload(r.Body)
	if err != nil {
		if errors.Is(err, dataset.ErrDataLoad) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	log.Printf("Dataset replaced by upload: %d rows (%d dropped)", rows, dropped)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"rows": rows, "dropped": dropped})
}

// parseReportParams extracts the report parameter set from the query
// string. Multi-select filters are only applied when their parameter is
// present; an explicitly empty selection excludes every row.
func (s *Server) parseReportParams(r *http.Request) (report.Params, error) {
	q := r.URL.Query()
	p := report.Params{}

	if raw := q.Get("granularity"); raw != "" {
		g, ok := timex.ParseGranularity(raw)
		if !ok {
			return p, fmt.Errorf("unknown granularity %q", raw)
		}
		p.Granularity = g
	}

	if raw := q.Get("dim"); raw != "" {
		dim, ok := model.ParseDimension(raw)
		if !ok {
			return p, fmt.Errorf("unknown dimension %q", raw)
		}
		p.Dimension = dim
	}

	for _, key := range []string{"start", "end"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		d, err := time.ParseInLocation(time.DateOnly, raw, s.zone)
		if err != nil {
			return p, fmt.Errorf("invalid %s date %q", key, raw)
		}
		if key == "start" {
			p.StartDate = d
		} else {
			p.EndDate = d
		}
	}

	p.Keyword = q.Get("keyword")
	p.Query = q.Get("query")

	selections := map[string]model.Dimension{
		"hosts":       model.DimHost,
		"connectors":  model.DimConnector,
		"connections": model.DimConnection,
	}
	for key, dim := range selections {
		if !q.Has(key) {
			continue
		}
		if p.Selections == nil {
			p.Selections = make(map[model.Dimension][]string)
		}
		var values []string
		for _, part := range strings.Split(q.Get(key), ",") {
			if part != "" {
				values = append(values, part)
			}
		}
		p.Selections[dim] = values
	}

	if raw := q.Get("topn"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("invalid topn %q", raw)
		}
		p.TopN = n
	} else {
		p.TopN = s.metaStore.GetData().Config.DefaultTopN
	}

	return p, nil
}

// handleReport recomputes the full report for the requested parameters.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := s.parseReportParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	table, _ := s.datasets.Table()
	rep, err := report.Compute(table, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleExport renders the aggregated series as a CSV download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := s.parseReportParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	table, _ := s.datasets.Table()
	rep, err := report.Compute(table, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="aggregated.csv"`)
	if err := report.WriteCSV(w, rep); err != nil {
		log.Printf("CSV export error: %v", err)
	}
}

// handleOptions returns the known dimension values for the filter UI.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.catalog.All())
}

// handleSearch evaluates an evql expression over the active table and
// returns up to `limit` matching rows.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	node, err := evql.Parse(r.URL.Query().Get("query"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid query syntax: %v", err), http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	table, _ := s.datasets.Table()
	events := table.Events()
	result := make([]model.Event, 0, limit)
	for i := range events {
		if len(result) >= limit {
			break
		}
		if evql.Match(node, &events[i]) {
			result = append(result, events[i])
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleStats returns the dataset summary.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	table, dropped := s.datasets.Table()
	summary := report.Summarize(table, dropped)

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Source DataSource `json:"source"`
		report.Summary
	}{Source: s.datasets.Source(), Summary: summary}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleRecords serves the append form: GET previews the head of the
// active table, POST appends one record to the persistent store.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		table, _ := s.datasets.Table()
		events := table.Events()
		if len(events) > limit {
			events = events[:limit]
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)

	case http.MethodPost:
		s.handleRecordAppend(w, r)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRecordAppend(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		http.Error(w, "Record store not configured", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	dateStr := string(v.GetStringBytes("date"))
	date, err := time.ParseInLocation(time.DateOnly, dateStr, s.zone)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid date %q", dateStr), http.StatusBadRequest)
		return
	}

	rec := store.Record{
		Date:        date,
		Destination: strings.TrimSpace(string(v.GetStringBytes("destination"))),
		Connector:   strings.TrimSpace(string(v.GetStringBytes("connector"))),
		Connection:  strings.TrimSpace(string(v.GetStringBytes("connection"))),
	}
	if rec.Destination == "" || rec.Connector == "" {
		http.Error(w, "destination and connector are required", http.StatusBadRequest)
		return
	}
	if !model.ValidConnectionType(rec.Connection) {
		http.Error(w, fmt.Sprintf("connection must be one of %v", s.catalog.ConnectionTypes()), http.StatusBadRequest)
		return
	}

	backupPath, err := s.records.Append(rec)
	// The primary write is authoritative: reload the table before
	// reporting a backup failure so the new record is never lost.
	s.reloadFromStore()

	if err != nil {
		log.Printf("Record append: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"backup": backupPath})
}

// handleRecordLast deletes the most recently appended record.
func (s *Server) handleRecordLast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.records == nil {
		http.Error(w, "Record store not configured", http.StatusNotFound)
		return
	}

	if err := s.records.DeleteLast(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reloadFromStore()
	w.WriteHeader(http.StatusNoContent)
}

// reloadFromStore refreshes the active table after a store mutation,
// unless an uploaded dataset is currently active.
func (s *Server) reloadFromStore() {
	if s.records == nil || s.datasets.Source() == SourceUpload {
		return
	}
	table, dropped, err := s.records.Load()
	if err != nil {
		log.Printf("Store reload error: %v", err)
		return
	}
	s.datasets.SetTable(table, dropped, SourceStore)
}
