package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collateral-auction/internal/auctionerrors"
	model "collateral-auction/internal/models"
)

// Store implements repository.AuctionStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given client's connection pool.
func NewStore(c *Client) *Store {
	return &Store{pool: c.Pool()}
}

// CreateAuction inserts a new auction row.
func (s *Store) CreateAuction(ctx context.Context, a model.Auction) error {
	const query = `
		INSERT INTO auctions (
			id, sequence, collateral_id, owner_id, starting_bid, reserve_price,
			kind, starts_at, ends_at, status, winner_id, winning_amount,
			cancel_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		a.AuctionID, a.Sequence, a.CollateralID, a.OwnerID, a.StartingBid, a.ReservePrice,
		string(a.Kind), a.StartsAt, a.EndsAt, string(a.Status), a.WinnerID, a.WinningAmount,
		a.CancelReason, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create auction %s: %w", a.AuctionID, err)
	}
	return nil
}

const auctionSelectCols = `id, sequence, collateral_id, owner_id, starting_bid, reserve_price,
	kind, starts_at, ends_at, status, winner_id, winning_amount, cancel_reason,
	created_at, updated_at`

func scanAuction(scanner interface{ Scan(dest ...any) error }) (model.Auction, error) {
	var a model.Auction
	var kind, status string
	err := scanner.Scan(
		&a.AuctionID, &a.Sequence, &a.CollateralID, &a.OwnerID, &a.StartingBid, &a.ReservePrice,
		&kind, &a.StartsAt, &a.EndsAt, &status, &a.WinnerID, &a.WinningAmount, &a.CancelReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	a.Kind = model.AuctionKind(kind)
	a.Status = model.AuctionStatus(status)
	return a, nil
}

// GetAuction returns the auction with the given id.
func (s *Store) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, auctionID)

	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("postgres: get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("postgres: get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// UpdateAuction overwrites an existing auction row.
func (s *Store) UpdateAuction(ctx context.Context, a model.Auction) error {
	const query = `
		UPDATE auctions SET
			sequence = $2, collateral_id = $3, owner_id = $4, starting_bid = $5,
			reserve_price = $6, kind = $7, starts_at = $8, ends_at = $9,
			status = $10, winner_id = $11, winning_amount = $12,
			cancel_reason = $13, updated_at = $14
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		a.AuctionID, a.Sequence, a.CollateralID, a.OwnerID, a.StartingBid,
		a.ReservePrice, string(a.Kind), a.StartsAt, a.EndsAt,
		string(a.Status), a.WinnerID, a.WinningAmount,
		a.CancelReason, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update auction %s: %w", a.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	return nil
}

// NextSequence returns the next human-readable auction sequence number.
func (s *Store) NextSequence(ctx context.Context) (string, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('auction_sequence_no')`).Scan(&n); err != nil {
		return "", fmt.Errorf("postgres: next sequence: %w", err)
	}
	return fmt.Sprintf("AUC-%06d", n), nil
}

// AppendBid inserts the bid and repoints the auction's leader in a single
// transaction. The auction row is locked FOR UPDATE so the leader pointer can
// never reference a bid that lost a race.
func (s *Store) AppendBid(ctx context.Context, b model.Bid) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: append bid %s: begin: %w", b.BidID, err)
	}
	defer tx.Rollback(ctx)

	var auctionID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM auctions WHERE id = $1 FOR UPDATE`, b.AuctionID,
	).Scan(&auctionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: append bid for auction %s: %w", b.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: append bid %s: lock auction: %w", b.BidID, err)
	}

	refunds, err := marshalRefunds(b.Payment.Refunds)
	if err != nil {
		return fmt.Errorf("postgres: append bid %s: %w", b.BidID, err)
	}

	const insert = `
		INSERT INTO bids (
			id, auction_id, bidder_id, amount, currency, placed_at,
			payment_status, paid_amount, payment_reference, refunds,
			dispute_status, dispute_reason, dispute_raised_by,
			dispute_resolved_by, dispute_notes, dispute_raised_at,
			dispute_resolved_at, deleted
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18
		)`
	_, err = tx.Exec(ctx, insert,
		b.BidID, b.AuctionID, b.BidderID, b.Amount, b.Currency, b.PlacedAt,
		string(b.Payment.Status), b.Payment.PaidAmount, b.Payment.Reference, refunds,
		string(b.Dispute.Status), b.Dispute.Reason, b.Dispute.RaisedBy,
		b.Dispute.ResolvedBy, b.Dispute.Notes, b.Dispute.RaisedAt,
		b.Dispute.ResolvedAt, b.Deleted,
	)
	if err != nil {
		return fmt.Errorf("postgres: append bid %s: insert: %w", b.BidID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE auctions SET leader_bid_id = $1, updated_at = NOW() WHERE id = $2`,
		b.BidID, b.AuctionID,
	); err != nil {
		return fmt.Errorf("postgres: append bid %s: repoint leader: %w", b.BidID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: append bid %s: commit: %w", b.BidID, err)
	}
	return nil
}

const bidSelectCols = `id, auction_id, bidder_id, amount, currency, placed_at,
	payment_status, paid_amount, payment_reference, refunds,
	dispute_status, dispute_reason, dispute_raised_by, dispute_resolved_by,
	dispute_notes, dispute_raised_at, dispute_resolved_at, deleted`

func scanBid(scanner interface{ Scan(dest ...any) error }) (model.Bid, error) {
	var b model.Bid
	var paymentStatus, disputeStatus string
	var refunds []byte

	err := scanner.Scan(
		&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.Currency, &b.PlacedAt,
		&paymentStatus, &b.Payment.PaidAmount, &b.Payment.Reference, &refunds,
		&disputeStatus, &b.Dispute.Reason, &b.Dispute.RaisedBy, &b.Dispute.ResolvedBy,
		&b.Dispute.Notes, &b.Dispute.RaisedAt, &b.Dispute.ResolvedAt, &b.Deleted,
	)
	if err != nil {
		return model.Bid{}, err
	}

	b.Payment.Status = model.PaymentStatus(paymentStatus)
	b.Dispute.Status = model.DisputeStatus(disputeStatus)
	if len(refunds) > 0 {
		if err := json.Unmarshal(refunds, &b.Payment.Refunds); err != nil {
			return model.Bid{}, fmt.Errorf("unmarshal refunds: %w", err)
		}
	}
	return b, nil
}

// GetBid returns the bid with the given id.
func (s *Store) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE id = $1`, bidID)

	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("postgres: get bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("postgres: get bid %s: %w", bidID, err)
	}
	return b, nil
}

// UpdateBid overwrites a bid's mutable payment/dispute/soft-delete state.
func (s *Store) UpdateBid(ctx context.Context, b model.Bid) error {
	refunds, err := marshalRefunds(b.Payment.Refunds)
	if err != nil {
		return fmt.Errorf("postgres: update bid %s: %w", b.BidID, err)
	}

	const query = `
		UPDATE bids SET
			payment_status = $2, paid_amount = $3, payment_reference = $4,
			refunds = $5, dispute_status = $6, dispute_reason = $7,
			dispute_raised_by = $8, dispute_resolved_by = $9, dispute_notes = $10,
			dispute_raised_at = $11, dispute_resolved_at = $12, deleted = $13
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		b.BidID, string(b.Payment.Status), b.Payment.PaidAmount, b.Payment.Reference,
		refunds, string(b.Dispute.Status), b.Dispute.Reason,
		b.Dispute.RaisedBy, b.Dispute.ResolvedBy, b.Dispute.Notes,
		b.Dispute.RaisedAt, b.Dispute.ResolvedAt, b.Deleted,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bid %s: %w", b.BidID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update bid %s: %w", b.BidID, auctionerrors.ErrBidNotFound)
	}
	return nil
}

// LeadingBid returns the bid the auction's leader pointer references.
func (s *Store) LeadingBid(ctx context.Context, auctionID string) (model.Bid, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE id = (SELECT leader_bid_id FROM auctions WHERE id = $1)`, auctionID)

	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("postgres: leading bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("postgres: leading bid for auction %s: %w", auctionID, err)
	}
	return b, nil
}

// BidsByAuction returns the auction's bids in acceptance order, oldest first
// unless newestFirst is set. Soft-deleted bids are omitted.
func (s *Store) BidsByAuction(ctx context.Context, auctionID string, newestFirst bool) ([]model.Bid, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE auction_id = $1 AND NOT deleted
		 ORDER BY accepted_seq `+order, auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	return collectBids(rows, auctionID)
}

// BidsByBidder returns a bidder's bids within one auction, oldest first.
func (s *Store) BidsByBidder(ctx context.Context, auctionID, bidderID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE auction_id = $1 AND bidder_id = $2 AND NOT deleted
		 ORDER BY accepted_seq ASC`, auctionID, bidderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: bids for bidder %s in auction %s: %w", bidderID, auctionID, err)
	}
	defer rows.Close()

	return collectBids(rows, auctionID)
}

// HasPaidBid reports whether any bid in the auction has reached paid status
// (including bids later refunded, which were paid first).
func (s *Store) HasPaidBid(ctx context.Context, auctionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM bids
			WHERE auction_id = $1 AND payment_status IN ('paid', 'refunded')
		)`, auctionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: paid bid check for auction %s: %w", auctionID, err)
	}
	return exists, nil
}

func collectBids(rows pgx.Rows, auctionID string) ([]model.Bid, error) {
	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid for auction %s: %w", auctionID, err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

func marshalRefunds(refunds []model.Refund) ([]byte, error) {
	if len(refunds) == 0 {
		return []byte("[]"), nil
	}
	payload, err := json.Marshal(refunds)
	if err != nil {
		return nil, fmt.Errorf("marshal refunds: %w", err)
	}
	return payload, nil
}
