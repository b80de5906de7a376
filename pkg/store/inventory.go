package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertInventoryItem inserts or replaces a stock record, keyed by
// (user, name).
func (s *Store) UpsertInventoryItem(ctx context.Context, item *InventoryItem) error {
	if item.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if item.Name == "" {
		return fmt.Errorf("item name is required")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, user_id, name, quantity, unit, category, supplier, min_stock, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			quantity = excluded.quantity,
			unit = excluded.unit,
			category = excluded.category,
			supplier = excluded.supplier,
			min_stock = excluded.min_stock,
			updated_at = excluded.updated_at`,
		item.ID, item.UserID, item.Name, item.Quantity, item.Unit,
		item.Category, item.Supplier, item.MinStock, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert inventory item: %w", err)
	}
	return nil
}

// ListInventory returns all stock records for a user.
func (s *Store) ListInventory(ctx context.Context, userID string) ([]*InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, quantity, unit, category, supplier, min_stock, updated_at
		FROM inventory_items WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	var items []*InventoryItem
	for rows.Next() {
		var item InventoryItem
		err := rows.Scan(
			&item.ID, &item.UserID, &item.Name, &item.Quantity, &item.Unit,
			&item.Category, &item.Supplier, &item.MinStock, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}
