package db

import (
	"auction-lifecycle-service/internal/ports/outbound"
)

// RepositoryFactory creates and manages all database repositories
type RepositoryFactory struct {
	conn *Connection
}

// Repositories groups the repositories for dependency injection
type Repositories struct {
	AuctionRepository   outbound.AuctionRepository
	BidRepository       outbound.BidRepository
	WatchlistRepository outbound.WatchlistRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// GetAuctionRepository returns the auction repository
func (f *RepositoryFactory) GetAuctionRepository() outbound.AuctionRepository {
	return NewAuctionRepository(f.conn)
}

// GetBidRepository returns the bid repository
func (f *RepositoryFactory) GetBidRepository() outbound.BidRepository {
	return NewBidRepository(f.conn)
}

// GetWatchlistRepository returns the watchlist repository
func (f *RepositoryFactory) GetWatchlistRepository() outbound.WatchlistRepository {
	return NewWatchlistRepository(f.conn)
}

// GetAllRepositories returns all repositories
func (f *RepositoryFactory) GetAllRepositories() Repositories {
	return Repositories{
		AuctionRepository:   f.GetAuctionRepository(),
		BidRepository:       f.GetBidRepository(),
		WatchlistRepository: f.GetWatchlistRepository(),
	}
}
