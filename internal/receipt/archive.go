package receipt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const documentBucketName = "documents"

// Archive keeps the raw extracted text of every ingested receipt
type Archive interface {
	// SaveDocument stores the document under its receipt id
	SaveDocument(doc *Document) error

	// GetDocument retrieves the document for a receipt id
	GetDocument(receiptID int64) (*Document, error)

	// DeleteDocument removes the document for a receipt id
	DeleteDocument(receiptID int64) error

	// Close closes the archive
	Close() error
}

// BoltArchive implements the Archive interface using BoltDB
type BoltArchive struct {
	db *bbolt.DB
}

// NewBoltArchive creates a new BoltArchive instance
func NewBoltArchive(path string) (*BoltArchive, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltArchive{db: db}, nil
}

func documentKey(receiptID int64) []byte {
	return []byte(strconv.FormatInt(receiptID, 10))
}

// SaveDocument stores a document
func (b *BoltArchive) SaveDocument(doc *Document) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(documentBucketName))
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling document: %w", err)
		}
		return bucket.Put(documentKey(doc.ReceiptID), data)
	})
}

// GetDocument retrieves a document by receipt id
func (b *BoltArchive) GetDocument(receiptID int64) (*Document, error) {
	var doc *Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(documentBucketName))
		data := bucket.Get(documentKey(receiptID))
		if data == nil {
			return fmt.Errorf("document for receipt %d: %w", receiptID, ErrNotFound)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document
func (b *BoltArchive) DeleteDocument(receiptID int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(documentBucketName))
		return bucket.Delete(documentKey(receiptID))
	})
}

// Close closes the archive
func (b *BoltArchive) Close() error {
	return b.db.Close()
}
