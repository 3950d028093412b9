// Package firestore persists dead device tokens reported by the feedback
// service in Google Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

const collectionName = "apns_feedback"

// FeedbackStore implements dispatch.FeedbackStore using Google Cloud Firestore.
type FeedbackStore struct {
	client *firestore.Client
}

func NewFeedbackStore(client *firestore.Client) *FeedbackStore {
	return &FeedbackStore{client: client}
}

// feedbackRecord is the internal DB representation.
type feedbackRecord struct {
	DeviceToken string    `firestore:"device_token"`
	ReportedAt  time.Time `firestore:"reported_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

// Record upserts each report, never replacing a newer one.
func (s *FeedbackStore) Record(ctx context.Context, records []apns.FeedbackRecord) error {
	for _, r := range records {
		ref := s.docRef(r.DeviceToken)
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			snap, err := tx.Get(ref)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if snap != nil && snap.Exists() {
				var existing feedbackRecord
				if err := snap.DataTo(&existing); err == nil && !existing.ReportedAt.Before(r.Timestamp) {
					return nil
				}
			}
			return tx.Set(ref, feedbackRecord{
				DeviceToken: apns.NormalizeToken(r.DeviceToken),
				ReportedAt:  r.Timestamp,
				UpdatedAt:   time.Now(),
			})
		})
		if err != nil {
			return fmt.Errorf("failed to record feedback for token %s: %w", r.DeviceToken, err)
		}
	}
	return nil
}

func (s *FeedbackStore) Lookup(ctx context.Context, token string) (apns.FeedbackRecord, bool, error) {
	snap, err := s.docRef(token).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return apns.FeedbackRecord{}, false, nil
	}
	if err != nil {
		return apns.FeedbackRecord{}, false, fmt.Errorf("firestore lookup failed: %w", err)
	}

	var record feedbackRecord
	if err := snap.DataTo(&record); err != nil {
		return apns.FeedbackRecord{}, false, fmt.Errorf("corrupt feedback document %s: %w", snap.Ref.ID, err)
	}
	return record.toRecord(), true, nil
}

func (s *FeedbackStore) List(ctx context.Context) ([]apns.FeedbackRecord, error) {
	iter := s.client.Collection(collectionName).OrderBy("reported_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	records := make([]apns.FeedbackRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record feedbackRecord
		if err := doc.DataTo(&record); err != nil {
			// Skip corrupt rows.
			continue
		}
		records = append(records, record.toRecord())
	}
	return records, nil
}

func (r feedbackRecord) toRecord() apns.FeedbackRecord {
	return apns.FeedbackRecord{DeviceToken: r.DeviceToken, Timestamp: r.ReportedAt.UTC()}
}

// docRef: apns_feedback/{tokenHash}
func (s *FeedbackStore) docRef(token string) *firestore.DocumentRef {
	return s.client.Collection(collectionName).Doc(hashToken(apns.NormalizeToken(token)))
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
