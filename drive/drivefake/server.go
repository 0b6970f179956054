// Package drivefake serves an in-memory store speaking the subset of the
// Drive v3 dialect used by package drive.
package drivefake

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const folderMimeType = "application/vnd.google-apps.folder"

var (
	nameQuery    = regexp.MustCompile(`^name = '((?:[^'\\]|\\.)*)'`)
	parentsQuery = regexp.MustCompile(`^'((?:[^'\\]|\\.)*)' in parents`)
	unescape     = strings.NewReplacer(`\'`, `'`, `\\`, `\`)
)

// Object is a stored file or folder.
type Object struct {
	ID          string
	Name        string
	MimeType    string
	Parents     []string
	Content     []byte
	CreatedTime time.Time
}

// Server is a fake store backed by an httptest.Server.
type Server struct {
	*httptest.Server

	// AcceptToken is the only bearer token accepted; any other gets 401.
	AcceptToken string
	// PageSize caps list pages so pagination gets exercised.
	PageSize    int

	mu      sync.Mutex
	objects []*Object
	nextID  int
	creates int
	uploads int
}

// New starts a fake store accepting token.
func New(token string) *Server {
	s := &Server{AcceptToken: token, PageSize: 100}

	r := mux.NewRouter()
	r.HandleFunc("/files", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/files", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/files/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/upload/files", s.handleUpload).Methods(http.MethodPost)
	r.Use(s.authMiddleware)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the metadata endpoint root.
func (s *Server) BaseURL() string { return s.URL }

// UploadURL is the upload endpoint root.
func (s *Server) UploadURL() string { return s.URL + "/upload" }

// SetToken changes the accepted bearer token.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AcceptToken = token
}

// AddFolder inserts a folder directly and returns its ID.
func (s *Server) AddFolder(name string) string {
	return s.add(&Object{Name: name, MimeType: folderMimeType}).ID
}

// AddFile inserts a file under parent directly and returns its ID.
func (s *Server) AddFile(parent, name string, content []byte) string {
	return s.add(&Object{Name: name, MimeType: "application/zip", Parents: []string{parent}, Content: content}).ID
}

// Objects returns a copy of everything stored.
func (s *Server) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, *o)
	}
	return out
}

// FolderCreates is how many folders were created through the API.
func (s *Server) FolderCreates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Uploads is how many uploads were accepted.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

func (s *Server) add(o *Object) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = fmt.Sprintf("obj-%03d", s.nextID)
	if o.CreatedTime.IsZero() {
		o.CreatedTime = time.Date(2024, 6, 1, 0, 0, s.nextID, 0, time.UTC)
	}
	s.objects = append(s.objects, o)
	return o
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.AcceptToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type fileJSON struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mimeType"`
	Size        string    `json:"size,omitempty"`
	CreatedTime time.Time `json:"createdTime"`
}

func toJSON(o *Object) fileJSON {
	f := fileJSON{ID: o.ID, Name: o.Name, MimeType: o.MimeType, CreatedTime: o.CreatedTime}
	if o.MimeType != folderMimeType {
		f.Size = strconv.Itoa(len(o.Content))
	}
	return f
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	match, ok := s.matcher(q)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported query: "+q)
		return
	}

	s.mu.Lock()
	var hits []fileJSON
	for _, o := range s.objects {
		if match(o) {
			hits = append(hits, toJSON(o))
		}
	}
	pageSize := s.PageSize
	s.mu.Unlock()

	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(hits) {
			writeError(w, http.StatusBadRequest, "bad page token")
			return
		}
		start = n
	}
	end := min(start+pageSize, len(hits))

	resp := map[string]any{"files": hits[start:end]}
	if end < len(hits) {
		resp["nextPageToken"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) matcher(q string) (func(*Object) bool, bool) {
	if m := nameQuery.FindStringSubmatch(q); m != nil {
		name := unescape.Replace(m[1])
		return func(o *Object) bool {
			return o.Name == name && o.MimeType == folderMimeType
		}, true
	}
	if m := parentsQuery.FindStringSubmatch(q); m != nil {
		parent := unescape.Replace(m[1])
		return func(o *Object) bool {
			if o.MimeType == folderMimeType {
				return false
			}
			for _, p := range o.Parents {
				if p == parent {
					return true
				}
			}
			return false
		}, true
	}
	return nil, false
}

type metadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var meta metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if meta.MimeType != folderMimeType {
		writeError(w, http.StatusBadRequest, "only folders can be created without content")
		return
	}
	o := s.add(&Object{Name: meta.Name, MimeType: meta.MimeType, Parents: meta.Parents})

	s.mu.Lock()
	s.creates++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, toJSON(o))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "multipart" {
		writeError(w, http.StatusBadRequest, "uploadType must be multipart")
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		writeError(w, http.StatusBadRequest, "expected multipart/related")
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing metadata part")
		return
	}
	var meta metadata
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contentPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing content part")
		return
	}
	content, err := io.ReadAll(contentPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o := s.add(&Object{Name: meta.Name, MimeType: meta.MimeType, Parents: meta.Parents, Content: content})

	s.mu.Lock()
	s.uploads++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, toJSON(o))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	var found *Object
	for _, o := range s.objects {
		if o.ID == id {
			found = o
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	if r.URL.Query().Get("alt") != "media" {
		writeJSON(w, http.StatusOK, toJSON(found))
		return
	}
	w.Header().Set("Content-Type", found.MimeType)
	w.WriteHeader(http.StatusOK)
	w.Write(found.Content)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}
