package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/avolkov/sharewatch/internal/models"
	"github.com/shopspring/decimal"
)

// JSONStorage implements Store using an atomically-written JSON file,
// following the teacher repo's crash-safe write protocol: encode to a temp
// file in the same directory, fsync it, atomically rename over the target,
// then fsync the parent directory entry.
type JSONStorage struct {
	data     *document
	filepath string
	mu       sync.RWMutex
}

// document is the complete on-disk shape.
type document struct {
	Settings *models.Settings                `json:"settings"`
	Orders   map[string]*models.TrackedOrder `json:"orders"`
}

// NewJSONStorage opens (or creates) a JSON-backed store at filePath.
func NewJSONStorage(filePath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filePath,
		data: &document{
			Settings: models.DefaultSettings(),
			Orders:   make(map[string]*models.TrackedOrder),
		},
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}

	if _, err := os.Stat(filePath); err == nil {
		if loadErr := s.load(); loadErr != nil {
			return nil, fmt.Errorf("loading storage: %w", loadErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat storage file: %w", err)
	}

	return s, nil
}

func (s *JSONStorage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath) // #nosec G304 -- filepath is operator-configured
	if err != nil {
		return err
	}

	var loaded document
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return err
	}
	if loaded.Settings == nil {
		loaded.Settings = models.DefaultSettings()
	}
	if loaded.Orders == nil {
		loaded.Orders = make(map[string]*models.TrackedOrder)
	}
	s.data = &loaded
	return nil
}

// saveUnsafe performs the atomic write. Must be called with mu held.
func (s *JSONStorage) saveUnsafe() error {
	dir := filepath.Dir(s.filepath)
	f, err := os.CreateTemp(dir, ".sharewatch-*")
	if err != nil {
		return err
	}
	tmpFile := f.Name()

	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpFile)
		return fmt.Errorf("set temp file permissions: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		if tmpFile != "" {
			_ = os.Remove(tmpFile)
		}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.data); err != nil {
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpFile)
		return err
	}

	dirSynced := false
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			if copyErr := copyFile(tmpFile, s.filepath); copyErr != nil {
				_ = os.Remove(tmpFile)
				return fmt.Errorf("copy temp file across devices: %w", copyErr)
			}
			_ = os.Remove(tmpFile)
			dirSynced = true
		} else {
			_ = os.Remove(tmpFile)
			return fmt.Errorf("rename temp file: %w", err)
		}
	}

	if !dirSynced {
		if err := syncParentDir(s.filepath); err != nil {
			return fmt.Errorf("sync parent directory: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src) // #nosec G304 -- src is our own temp file
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	dstDir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dstDir, ".tmp_*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return err
	}
	if _, err := io.Copy(tmp, srcFile); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return err
	}
	tmpName = ""
	return syncParentDir(dst)
}

func syncParentDir(path string) error {
	dir, err := os.Open(filepath.Dir(path)) // #nosec G304 -- derived from our own configured path
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()
	return dir.Sync()
}

// GetSettings implements Store.
func (s *JSONStorage) GetSettings() (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Settings.Copy(), nil
}

func (s *JSONStorage) mutateSettings(mutate func(*models.Settings)) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(s.data.Settings)
	s.data.Settings.UpdatedAt = time.Now().UTC()
	if err := s.saveUnsafe(); err != nil {
		return nil, err
	}
	return s.data.Settings.Copy(), nil
}

// SetActive implements Store.
func (s *JSONStorage) SetActive(active bool, reason, by string) (*models.Settings, error) {
	return s.mutateSettings(func(st *models.Settings) {
		st.IsActive = active
		st.LastChangeReason = reason
		st.LastChangeBy = by
		st.LastChangeAt = time.Now().UTC()
	})
}

// SetMode implements Store.
func (s *JSONStorage) SetMode(mode models.Mode, reason, by string) (*models.Settings, error) {
	return s.mutateSettings(func(st *models.Settings) {
		st.Mode = mode
		st.LastChangeReason = reason
		st.LastChangeBy = by
		st.LastChangeAt = time.Now().UTC()
	})
}

// SetPauseUntil implements Store.
func (s *JSONStorage) SetPauseUntil(until *time.Time, reason, by string) (*models.Settings, error) {
	return s.mutateSettings(func(st *models.Settings) {
		st.PauseUntil = until
		st.LastChangeReason = reason
		st.LastChangeBy = by
		st.LastChangeAt = time.Now().UTC()
	})
}

// IncrementStats implements Store.
func (s *JSONStorage) IncrementStats(orders, sl, tp int, pnlRub decimal.Decimal) (*models.Settings, error) {
	return s.mutateSettings(func(st *models.Settings) {
		st.TotalOrdersPlaced += orders
		st.TotalSLTriggered += sl
		st.TotalTPTriggered += tp
		st.TotalPnLRub = st.TotalPnLRub.Add(pnlRub)
	})
}

// SaveTracked implements Store.
func (s *JSONStorage) SaveTracked(order *models.TrackedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.UpdatedAt = time.Now().UTC()
	s.data.Orders[order.OrderID] = order.Copy()
	return s.saveUnsafe()
}

// UpdateTracked implements Store.
func (s *JSONStorage) UpdateTracked(orderID string, patch func(*models.TrackedOrder)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.data.Orders[orderID]
	if !ok {
		return false, nil
	}
	patch(row)
	row.UpdatedAt = time.Now().UTC()
	if err := s.saveUnsafe(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkExecuted implements Store.
func (s *JSONStorage) MarkExecuted(orderID string, executedPrice decimal.Decimal, reason string, pnlRub, pnlPct *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.data.Orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if err := row.StateMachine().Transition(models.StateExecuted, "broker_fill"); err != nil {
		// already-executed or transitional mismatch: still record the
		// terminal fields, the watcher's reconciliation owns retries.
		_ = err
	}
	now := time.Now().UTC()
	row.Status = models.StatusExecuted
	row.IsExecuted = true
	row.ExecutedPrice = executedPrice
	row.ExecutedAt = &now
	row.CancelReason = reason
	if pnlRub != nil {
		row.PnLRub = *pnlRub
	}
	if pnlPct != nil {
		row.PnLPct = *pnlPct
	}
	row.UpdatedAt = now
	return s.saveUnsafe()
}

// MarkCancelled implements Store.
func (s *JSONStorage) MarkCancelled(orderID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.data.Orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	row.Status = models.StatusCancelled
	row.CancelReason = reason
	row.UpdatedAt = time.Now().UTC()
	return s.saveUnsafe()
}

// LinkSiblings implements Store.
func (s *JSONStorage) LinkSiblings(entryID string, slID, tpID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.data.Orders[entryID]
	if !ok {
		return ErrOrderNotFound
	}
	if slID != nil {
		row.SLOrderID = *slID
	}
	if tpID != nil {
		row.TPOrderID = *tpID
	}
	row.UpdatedAt = time.Now().UTC()
	return s.saveUnsafe()
}

// GetTracked implements Store.
func (s *JSONStorage) GetTracked(orderID string) (*models.TrackedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.data.Orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return row.Copy(), nil
}

// ListPending implements Store.
func (s *JSONStorage) ListPending() ([]*models.TrackedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TrackedOrder
	for _, row := range s.data.Orders {
		if row.Status == models.StatusPending {
			out = append(out, row.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByParent implements Store.
func (s *JSONStorage) ListByParent(entryID string) ([]*models.TrackedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TrackedOrder
	for _, row := range s.data.Orders {
		if row.ParentOrderID == entryID {
			out = append(out, row.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
