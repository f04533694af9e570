package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
)

// UsersCollection holds one document per user id.
const UsersCollection = "usuarios"

// FirestoreStore stores documents at usuarios/{uid}. Money values are written as
// decimal strings; legacy numeric fields are still read back correctly.
type FirestoreStore struct {
	client *firestore.Client
	logger *log.Logger
	now    func() time.Time
}

// NewFirestoreStore initializes a Firebase app for projectID. credentialsFile
// may be empty to use application default credentials.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string, logger *log.Logger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firestore client: %w", err)
	}

	return NewFirestoreStoreWithClient(client, logger), nil
}

func NewFirestoreStoreWithClient(client *firestore.Client, logger *log.Logger) *FirestoreStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FirestoreStore{
		client: client,
		logger: logger.WithComponent(log.ComponentStorage).With(log.FieldBackend, "firestore"),
		now:    time.Now,
	}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) doc(uid string) *firestore.DocumentRef {
	return s.client.Collection(UsersCollection).Doc(uid)
}

func (s *FirestoreStore) Get(ctx context.Context, uid string) (*core.UserDocument, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	snap, err := s.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return fromFirestore(snap.Data())
}

func (s *FirestoreStore) Set(ctx context.Context, uid string, doc *core.UserDocument) error {
	if err := checkUID(uid); err != nil {
		return err
	}
	cp := *doc
	touch(&cp, s.now())
	data, err := toFirestore(&cp)
	if err != nil {
		return err
	}
	if _, err := s.doc(uid).Set(ctx, data); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

// Update runs the mutator inside a Firestore transaction, which the client
// retries on contention. fn may therefore run more than once.
func (s *FirestoreStore) Update(ctx context.Context, uid string, fn Mutator) (*core.UserDocument, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	ref := s.doc(uid)

	var result *core.UserDocument
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("load document: %w", err)
		}
		doc, err := fromFirestore(snap.Data())
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		touch(doc, s.now())
		data, err := toFirestore(doc)
		if err != nil {
			return err
		}
		result = doc
		return tx.Set(ref, data)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return result, nil
}

func (s *FirestoreStore) ListUserIDs(ctx context.Context) ([]string, error) {
	refs := s.client.Collection(UsersCollection).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list user ids: %w", err)
		}
		ids = append(ids, ref.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// toFirestore goes through the JSON wire shape so the stored fields keep
// the same names the web client reads.
func toFirestore(doc *core.UserDocument) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func fromFirestore(data map[string]any) (*core.UserDocument, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return decodeDocument(raw)
}
