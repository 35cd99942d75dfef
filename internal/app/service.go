package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"loandocs/api/internal/config"
	"loandocs/api/internal/document"
	"loandocs/api/internal/generate"
	"loandocs/api/internal/legacy"
	"loandocs/api/internal/remote"
	"loandocs/api/internal/search"
	"loandocs/api/internal/split"
	"loandocs/api/internal/store"
	"loandocs/api/internal/util"
)

const pushTimeout = 30 * time.Second

type localStore interface {
	Ping(context.Context) error
	Insert(context.Context, document.Record) error
	InsertIfAbsent(context.Context, document.Record) (bool, error)
	Get(context.Context, string) (document.Record, error)
	ListByLoan(context.Context, string) ([]document.Record, error)
	ListByLoanAndType(context.Context, string, string) ([]document.Record, error)
	ListOrphaned(context.Context) ([]document.Record, error)
	ListPage(context.Context, int, string) ([]document.Record, string, error)
	LoanIDs(context.Context) ([]string, error)
	Count(context.Context) (int, error)
	UsageBytes(context.Context) (int64, error)
	Update(context.Context, document.Record) error
	AssignLoan(context.Context, []string, string) error
	MarkPending(context.Context, string) (int64, error)
	SettleSync(context.Context, string, int64, document.SyncState) (bool, error)
	InvalidateSync(context.Context, string) error
	CheckQuota(context.Context, int64) error
	Delete(context.Context, string) (document.Record, error)
	Clear(context.Context) ([]string, error)
	AddTombstone(context.Context, string, string) error
	RemoveTombstone(context.Context, string) error
	Tombstones(context.Context, string) ([]store.Tombstone, error)
	GetMeta(context.Context, string) (string, bool, error)
	SetMeta(context.Context, string, string) error
	PutLoan(context.Context, store.Loan) error
	Loan(context.Context, string) (store.Loan, error)
}

type searchService interface {
	Healthy() bool
	IndexDocuments(ctx context.Context, loanID string) (search.IndexResult, error)
	QueryContext(ctx context.Context, loanID, text string, topK int) (search.QueryResult, error)
	IndexDocument(rec document.Record)
	DeleteDocument(id string)
}

type legacySource interface {
	ReadAll(ctx context.Context) ([]legacy.Item, error)
}

// Deps are the collaborators a Service is built from. Everything except
// Local is optional; a nil Search searches the local store only.
type Deps struct {
	Local     *store.Local
	Remote    remote.Backend
	Mode      remote.Mode
	Search    *search.Service
	Legacy    *legacy.Store
	Generator generate.Generator
	Splitter  split.Splitter
}

type Service struct {
	cfg       config.Config
	local     localStore
	remote    remote.Backend
	mode      remote.Mode
	search    searchService
	legacy    legacySource
	generator generate.Generator
	splitter  split.Splitter
	now       func() time.Time
	wg        sync.WaitGroup
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:       cfg,
		local:     deps.Local,
		remote:    deps.Remote,
		mode:      deps.Mode,
		search:    deps.Search,
		generator: deps.Generator,
		splitter:  deps.Splitter,
		now:       time.Now,
	}
	if deps.Search == nil {
		s.search = search.NewService(nil, deps.Local, deps.Local)
	}
	if deps.Legacy != nil {
		s.legacy = deps.Legacy
	}
	if s.remote == nil {
		s.remote = remote.Disabled{}
		s.mode = remote.ModeLocalFallback
	}
	if s.mode == "" {
		s.mode = remote.ModeRemote
	}
	return s
}

type UploadInput struct {
	LoanID      string
	DocType     string
	Category    string
	Filename    string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	Record   document.Record   `json:"document"`
	Split    []document.Record `json:"splitDocuments,omitempty"`
	Removed  []document.Record `json:"removed,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

type DeleteResult struct {
	ID            string `json:"id"`
	RemoteDeleted bool   `json:"remoteDeleted"`
	Drift         bool   `json:"drift"`
}

type ViewResult struct {
	Record document.Record `json:"document"`
	Source string          `json:"source"`
}

type DocumentUpdate struct {
	Status     *document.Status `json:"status"`
	Notes      *string          `json:"notes"`
	AssignedTo *string          `json:"assignedTo"`
}

type DocumentPage struct {
	Documents  []document.Record `json:"documents"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

func (s *Service) Ping(ctx context.Context) error {
	return s.local.Ping(ctx)
}

func (s *Service) Mode() remote.Mode {
	return s.mode
}

// RemotePing reports whether the remote store is in use and reachable.
func (s *Service) RemotePing(ctx context.Context) error {
	if s.mode != remote.ModeRemote {
		return document.ErrRemoteUnreachable
	}
	return s.remote.Ping(ctx)
}

func (s *Service) IndexHealthy() bool {
	return s.search.Healthy()
}

// Wait blocks until every queued remote write has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Upload stores a new document. Catalog slots only accept PDFs; anything
// already in the (loan, type) slot is removed first.
func (s *Service) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return UploadResult{}, validationError("filename is required")
	}
	if len(in.Data) == 0 {
		return UploadResult{}, validationError("file is empty")
	}

	loanID := strings.TrimSpace(in.LoanID)
	docType, category := resolveType(strings.TrimSpace(in.DocType), document.Category(strings.TrimSpace(in.Category)), filename)
	slot := document.IsCatalogType(docType)

	mimeType := document.DetectMIME(in.Data, in.ContentType)
	if err := document.ValidateUploadType(mimeType, slot); err != nil {
		return UploadResult{}, err
	}

	content := document.EncodeDataURL(mimeType, in.Data)
	if err := s.checkReplaceQuota(ctx, loanID, docType, int64(len(content))); err != nil {
		return UploadResult{}, err
	}

	var result UploadResult
	removed, err := s.clearSlot(ctx, loanID, docType)
	result.Removed = removed
	if err != nil {
		return result, err
	}

	rec := document.Record{
		ID:           util.NewID(""),
		LoanID:       loanID,
		DocType:      docType,
		Category:     category,
		Filename:     filename,
		FileType:     mimeType,
		FileSize:     int64(len(in.Data)),
		Content:      content,
		Status:       document.StatusPending,
		DateUploaded: s.now().UTC(),
		Checksum:     document.Checksum(in.Data),
		SyncState:    document.SyncUnsynced,
	}
	if err := s.local.Insert(ctx, rec); err != nil {
		return result, fmt.Errorf("store document: %w", err)
	}
	s.schedulePush(rec)
	s.search.IndexDocument(rec)
	result.Record = rec.Summary()

	if docType == document.TypeExecutedPackage && !rec.IsOrphaned() && s.splitter != nil {
		s.splitPackage(ctx, rec, &result)
	}
	return result, nil
}

func resolveType(docType string, category document.Category, filename string) (string, document.Category) {
	switch docType {
	case document.TypeAuto:
		return document.Classify(filename)
	case "":
		return document.SlugFromFilename(filename), document.CategoryMisc
	}
	if entry, ok := document.LookupType(docType); ok {
		return entry.DocType, entry.Category
	}
	if !document.ValidCategory(category) {
		category = document.CategoryMisc
	}
	return docType, category
}

// splitPackage stores the documents split out of an executed package. A
// partial split keeps whatever was produced and reports a warning.
func (s *Service) splitPackage(ctx context.Context, pkg document.Record, result *UploadResult) {
	parts, splitErr := s.splitter.Split(ctx, pkg)
	failed := splitErr != nil
	if splitErr != nil {
		log.Printf("split: package %s: %v", pkg.ID, splitErr)
	}

	for _, part := range parts {
		part.LoanID = pkg.LoanID
		part.Status = document.StatusPending
		part.SyncState = document.SyncUnsynced
		if part.ID == "" || part.ID == pkg.ID {
			part.ID = util.NewID("")
		}
		if part.DateUploaded.IsZero() {
			part.DateUploaded = s.now().UTC()
		}
		if err := s.local.Insert(ctx, part); err != nil {
			log.Printf("split: store %s from package %s: %v", part.Filename, pkg.ID, err)
			failed = true
			continue
		}
		s.schedulePush(part)
		s.search.IndexDocument(part)
		result.Split = append(result.Split, part.Summary())
	}
	if failed {
		result.Warnings = append(result.Warnings, document.PartialSplitFailure)
	}

	dedup, err := s.Deduplicate(ctx, pkg.LoanID)
	if err != nil {
		log.Printf("split: deduplicate loan %s: %v", pkg.LoanID, err)
		return
	}
	result.Removed = append(result.Removed, dedup.Removed...)
}

// Generate synthesizes the document for a catalog slot, replacing the current one.
func (s *Service) Generate(ctx context.Context, loanID, docType string) (UploadResult, error) {
	loanID = strings.TrimSpace(loanID)
	if document.IsUnassignedLoanID(loanID) {
		return UploadResult{}, validationError("loanId is required")
	}
	if !document.IsCatalogType(docType) {
		return UploadResult{}, fmt.Errorf("%w: %s", document.ErrUnknownDocType, docType)
	}
	if s.generator == nil {
		return UploadResult{}, domainError(http.StatusServiceUnavailable, "GENERATOR_UNAVAILABLE", "Document generation is not configured", nil)
	}

	rec, err := s.generator.Generate(ctx, loanID, docType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("generate %s: %w", docType, err)
	}
	rec.LoanID = loanID
	rec.DocType = docType
	rec.SyncState = document.SyncUnsynced
	if rec.DateUploaded.IsZero() {
		rec.DateUploaded = s.now().UTC()
	}
	if err := s.checkReplaceQuota(ctx, loanID, docType, int64(len(rec.Content))); err != nil {
		return UploadResult{}, err
	}

	var result UploadResult
	removed, err := s.clearSlot(ctx, loanID, docType)
	result.Removed = removed
	if err != nil {
		return result, err
	}
	if err := s.local.Insert(ctx, rec); err != nil {
		return result, fmt.Errorf("store document: %w", err)
	}
	s.schedulePush(rec)
	s.search.IndexDocument(rec)
	result.Record = rec.Summary()
	return result, nil
}

// checkReplaceQuota fails before anything is removed when the new content
// would not fit even after the current slot records are freed.
func (s *Service) checkReplaceQuota(ctx context.Context, loanID, docType string, incoming int64) error {
	var freed int64
	if !document.IsUnassignedLoanID(loanID) {
		existing, err := s.local.ListByLoanAndType(ctx, loanID, docType)
		if err != nil {
			return fmt.Errorf("list slot %s/%s: %w", loanID, docType, err)
		}
		for _, rec := range existing {
			freed += int64(len(rec.Content))
		}
	}
	return s.local.CheckQuota(ctx, incoming-freed)
}

// clearSlot deletes every record currently in (loanID, docType). Orphans have no slots.
func (s *Service) clearSlot(ctx context.Context, loanID, docType string) ([]document.Record, error) {
	if document.IsUnassignedLoanID(loanID) {
		return nil, nil
	}
	existing, err := s.local.ListByLoanAndType(ctx, loanID, docType)
	if err != nil {
		return nil, fmt.Errorf("list slot %s/%s: %w", loanID, docType, err)
	}

	var removed []document.Record
	for _, rec := range existing {
		if _, err := s.local.Delete(ctx, rec.ID); err != nil {
			if errors.Is(err, document.ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("replace %s: %w", rec.ID, err)
		}
		s.search.DeleteDocument(rec.ID)
		s.deleteRemote(ctx, rec)
		removed = append(removed, rec.Summary())
	}
	return removed, nil
}

// Delete removes a document locally and then remotely. A failed remote delete
// is reported as drift and left as a tombstone for the reconciler.
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	rec, err := s.local.Delete(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	s.search.DeleteDocument(id)

	ok := s.deleteRemote(ctx, rec)
	return DeleteResult{ID: id, RemoteDeleted: ok, Drift: !ok}, nil
}

// View reads the local copy, falling back to the remote store without writing back.
func (s *Service) View(ctx context.Context, id string) (ViewResult, error) {
	rec, err := s.local.Get(ctx, id)
	if err == nil {
		return ViewResult{Record: rec, Source: "local"}, nil
	}
	if !errors.Is(err, document.ErrNotFound) {
		return ViewResult{}, err
	}

	rec, err = s.remote.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, document.ErrNotFound) && !errors.Is(err, document.ErrRemoteUnreachable) {
			log.Printf("remote: view %s: %v", id, err)
		}
		return ViewResult{}, document.ErrNotFound
	}
	return ViewResult{Record: rec, Source: "remote"}, nil
}

func (s *Service) UpdateDocument(ctx context.Context, id string, in DocumentUpdate) (document.Record, error) {
	rec, err := s.local.Get(ctx, id)
	if err != nil {
		return document.Record{}, err
	}
	if in.Status != nil {
		if !document.ValidStatus(*in.Status) {
			return document.Record{}, validationError("status must be pending, approved or rejected")
		}
		rec.Status = *in.Status
	}
	if in.Notes != nil {
		rec.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.AssignedTo != nil {
		rec.AssignedTo = strings.TrimSpace(*in.AssignedTo)
	}

	if err := s.local.Update(ctx, rec); err != nil {
		return document.Record{}, err
	}
	rec.SyncState = document.SyncUnsynced
	s.schedulePush(rec)
	return rec.Summary(), nil
}

func (s *Service) ListDocuments(ctx context.Context, loanID string) ([]document.Record, error) {
	records, err := s.local.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return summaries(records), nil
}

func (s *Service) Slots(ctx context.Context, loanID string) ([]document.Slot, error) {
	records, err := s.local.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return document.BuildSlotView(summaries(records), loanID), nil
}

func (s *Service) ListAll(ctx context.Context, limit int, cursor string) (DocumentPage, error) {
	records, next, err := s.local.ListPage(ctx, limit, cursor)
	if err != nil {
		return DocumentPage{}, err
	}
	return DocumentPage{Documents: summaries(records), NextCursor: next}, nil
}

func (s *Service) Orphans(ctx context.Context) ([]document.Record, error) {
	records, err := s.local.ListOrphaned(ctx)
	if err != nil {
		return nil, err
	}
	return summaries(records), nil
}

func (s *Service) IndexDocuments(ctx context.Context, loanID string) (search.IndexResult, error) {
	return s.search.IndexDocuments(ctx, loanID)
}

func (s *Service) QueryDocuments(ctx context.Context, loanID, text string, topK int) (search.QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return search.QueryResult{}, validationError("query is required")
	}
	return s.search.QueryContext(ctx, loanID, text, topK)
}

// schedulePush writes the record's latest local state to the remote store in
// the background: pending while in flight, then synced or back to unsynced.
func (s *Service) schedulePush(rec document.Record) {
	if s.mode != remote.ModeRemote {
		return
	}
	gen, err := s.local.MarkPending(context.Background(), rec.ID)
	if err != nil {
		log.Printf("remote: mark %s pending: %v", rec.ID, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.push(ctx, rec.ID, gen); err != nil {
			log.Printf("remote: push %s: %v", rec.ID, err)
		}
	}()
}

// push writes the current local copy of id under sync generation gen. Only
// the push owning the latest generation may mark the record synced; a push
// overtaken by a local change or a later push leaves it unsynced, since its
// put may have landed last.
func (s *Service) push(ctx context.Context, id string, gen int64) error {
	latest, err := s.local.Get(ctx, id)
	if errors.Is(err, document.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.settle(ctx, id, gen, document.SyncUnsynced)
		return fmt.Errorf("reload: %w", err)
	}
	if err := s.remote.Put(ctx, latest); err != nil {
		s.settle(ctx, id, gen, document.SyncUnsynced)
		return err
	}
	if s.settle(ctx, id, gen, document.SyncSynced) {
		return nil
	}

	if _, err := s.local.Get(ctx, id); errors.Is(err, document.ErrNotFound) {
		// Deleted locally while the put was in flight.
		s.deleteRemote(ctx, latest)
		return nil
	}
	if err := s.local.InvalidateSync(ctx, id); err != nil {
		log.Printf("remote: invalidate %s: %v", id, err)
	}
	return nil
}

func (s *Service) settle(ctx context.Context, id string, gen int64, to document.SyncState) bool {
	ok, err := s.local.SettleSync(ctx, id, gen, to)
	if err != nil {
		log.Printf("remote: mark %s %s: %v", id, to, err)
	}
	return ok
}

// deleteRemote records a tombstone, attempts the remote delete and clears
// the tombstone on success. In local-fallback mode the tombstone stays until
// a remote store is configured again; PendingTombstones counts them.
func (s *Service) deleteRemote(ctx context.Context, rec document.Record) bool {
	if err := s.local.AddTombstone(ctx, rec.ID, rec.LoanID); err != nil {
		log.Printf("remote: tombstone %s: %v", rec.ID, err)
	}
	if s.mode != remote.ModeRemote {
		return false
	}
	if err := s.remote.Delete(ctx, rec.ID); err != nil {
		log.Printf("remote: delete %s: %v", rec.ID, err)
		return false
	}
	if err := s.local.RemoveTombstone(ctx, rec.ID); err != nil {
		log.Printf("remote: clear tombstone %s: %v", rec.ID, err)
	}
	return true
}

// scheduleRemoteDelete is the fire-and-forget form of deleteRemote. The
// tombstone is written before returning.
func (s *Service) scheduleRemoteDelete(rec document.Record) {
	ctx := context.Background()
	if err := s.local.AddTombstone(ctx, rec.ID, rec.LoanID); err != nil {
		log.Printf("remote: tombstone %s: %v", rec.ID, err)
	}
	if s.mode != remote.ModeRemote {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.remote.Delete(ctx, rec.ID); err != nil {
			log.Printf("remote: delete %s: %v", rec.ID, err)
			return
		}
		if err := s.local.RemoveTombstone(ctx, rec.ID); err != nil {
			log.Printf("remote: clear tombstone %s: %v", rec.ID, err)
		}
	}()
}

func summaries(records []document.Record) []document.Record {
	out := make([]document.Record, len(records))
	for i, rec := range records {
		out[i] = rec.Summary()
	}
	return out
}
