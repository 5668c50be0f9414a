package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/welldanyogia/fieldguard/internal/fieldcipher"
	"github.com/welldanyogia/fieldguard/internal/metrics"
	"github.com/welldanyogia/fieldguard/internal/repository"
)

// Service stores profile fields encrypted with the field cipher
type Service struct {
	repo   repository.ProtectedFieldRepository
	cipher *fieldcipher.Cipher
	logger *slog.Logger
}

// ServiceConfig contains configuration for the fields Service
type ServiceConfig struct {
	Repository repository.ProtectedFieldRepository
	Cipher     *fieldcipher.Cipher
	Logger     *slog.Logger
}

// NewService creates a new fields Service instance
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:   cfg.Repository,
		cipher: cfg.Cipher,
		logger: cfg.Logger,
	}
}

// Put encrypts value and stores it under name for owner
func (s *Service) Put(ctx context.Context, ownerID uuid.UUID, name string, value interface{}) (*FieldResponse, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	blob, err := s.cipher.Encrypt(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt field: %w", err)
	}

	field := &repository.ProtectedField{
		OwnerID: ownerID,
		Name:    name,
		Blob:    blob,
	}
	if err := s.repo.Upsert(ctx, field); err != nil {
		return nil, err
	}
	metrics.ProtectedFieldWrites.WithLabelValues("upsert").Inc()

	s.logger.Info("protected field stored",
		slog.String("owner_id", ownerID.String()),
		slog.String("field", name),
	)

	return &FieldResponse{
		Name:      field.Name,
		Value:     normalize(value),
		Readable:  true,
		CreatedAt: field.CreatedAt,
		UpdatedAt: field.UpdatedAt,
	}, nil
}

// Get decrypts one field. An unreadable blob is not an error: the field is
// returned with a null value and Readable false.
func (s *Service) Get(ctx context.Context, ownerID uuid.UUID, name string) (*FieldResponse, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	field, err := s.repo.Get(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}

	var value interface{}
	readable := s.cipher.DecryptInto(field.Blob, &value)
	if !readable {
		s.logger.Warn("protected field unreadable",
			slog.String("owner_id", ownerID.String()),
			slog.String("field", name),
		)
	}

	return &FieldResponse{
		Name:      field.Name,
		Value:     value,
		Readable:  readable,
		CreatedAt: field.CreatedAt,
		UpdatedAt: field.UpdatedAt,
	}, nil
}

// List returns the owner's field names and whether each blob still opens
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) (*ListFieldsResponse, error) {
	stored, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]FieldSummary, 0, len(stored))
	for _, f := range stored {
		var discard json.RawMessage
		summaries = append(summaries, FieldSummary{
			Name:      f.Name,
			Readable:  s.cipher.Open(f.Blob, &discard) == nil,
			UpdatedAt: f.UpdatedAt,
		})
	}
	return &ListFieldsResponse{Fields: summaries}, nil
}

// Delete removes one field of owner
func (s *Service) Delete(ctx context.Context, ownerID uuid.UUID, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, name); err != nil {
		return err
	}
	metrics.ProtectedFieldWrites.WithLabelValues("delete").Inc()
	return nil
}

// normalize echoes raw JSON back as a decoded value
func normalize(value interface{}) interface{} {
	raw, ok := value.(json.RawMessage)
	if !ok {
		return value
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded
}
