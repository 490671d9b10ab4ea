package tests

import (
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCart_EmptyOnFirstRead() {
	view, err := s.Cart.Get(s.Ctx, 1)
	s.Require().NoError(err)

	s.Empty(view.Items)
	s.True(view.TotalPrice.IsZero())
	s.Zero(view.TotalItems)
}

func (s *IntegrationTestSuite) TestCart_AddMergesAndCaps() {
	book := s.seedBook(10, "Dune", "12.50", 3)

	view, err := s.Cart.AddItem(s.Ctx, 1, book.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal(int32(1), view.Items[0].Quantity)

	view, err = s.Cart.AddItem(s.Ctx, 1, book.ID, 3)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal(int32(3), view.Items[0].Quantity)
	s.Equal(int32(3), view.Items[0].MaxQuantity)
	s.True(decimal.RequireFromString("37.50").Equal(view.TotalPrice))
}

func (s *IntegrationTestSuite) TestCart_AddRejections() {
	book := s.seedBook(10, "Dune", "12.50", 3)
	gone := s.seedBook(10, "Emma", "5.00", 0)

	_, err := s.Cart.AddItem(s.Ctx, 1, book.ID, 4)
	s.ErrorIs(err, domain.ErrInvalidQuantity)

	_, err = s.Cart.AddItem(s.Ctx, 1, gone.ID, 1)
	s.ErrorIs(err, domain.ErrOutOfStock)

	_, err = s.Cart.AddItem(s.Ctx, 1, 999999, 1)
	s.ErrorIs(err, domain.ErrBookNotFound)

	view, err := s.Cart.Get(s.Ctx, 1)
	s.Require().NoError(err)
	s.Empty(view.Items)
}

func (s *IntegrationTestSuite) TestCart_UpdateAndRemove() {
	book := s.seedBook(10, "Dune", "10.00", 5)
	other := s.seedBook(10, "Emma", "10.00", 5)

	_, err := s.Cart.AddItem(s.Ctx, 1, book.ID, 1)
	s.Require().NoError(err)

	view, err := s.Cart.UpdateItem(s.Ctx, 1, book.ID, 4)
	s.Require().NoError(err)
	s.Equal(int32(4), view.Items[0].Quantity)

	_, err = s.Cart.UpdateItem(s.Ctx, 1, book.ID, 6)
	s.ErrorIs(err, domain.ErrInvalidQuantity)

	_, err = s.Cart.UpdateItem(s.Ctx, 1, other.ID, 1)
	s.ErrorIs(err, domain.ErrCartItemNotFound)

	view, err = s.Cart.RemoveItem(s.Ctx, 1, book.ID)
	s.Require().NoError(err)
	s.Empty(view.Items)

	_, err = s.Cart.RemoveItem(s.Ctx, 1, book.ID)
	s.NoError(err)
}

func (s *IntegrationTestSuite) TestCart_ReplaceMergesDuplicates() {
	book := s.seedBook(10, "Dune", "10.00", 5)
	other := s.seedBook(10, "Emma", "2.25", 5)

	_, err := s.Cart.AddItem(s.Ctx, 1, other.ID, 1)
	s.Require().NoError(err)

	view, err := s.Cart.Replace(s.Ctx, 1, []domain.CartItem{
		{BookID: book.ID, Quantity: 1},
		{BookID: book.ID, Quantity: 2},
	})
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal(book.ID, view.Items[0].BookID)
	s.Equal(int32(3), view.Items[0].Quantity)

	_, err = s.Cart.Replace(s.Ctx, 1, []domain.CartItem{{BookID: book.ID, Quantity: 6}})
	s.ErrorIs(err, domain.ErrInvalidQuantity)

	// failed replace leaves the previous contents alone
	view, err = s.Cart.Get(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal(int32(3), view.Items[0].Quantity)
}

func (s *IntegrationTestSuite) TestCart_RepricesAndHeals() {
	book := s.seedBook(10, "Dune", "10.00", 5)
	other := s.seedBook(10, "Emma", "3.00", 5)

	_, err := s.Cart.AddItem(s.Ctx, 1, book.ID, 2)
	s.Require().NoError(err)
	_, err = s.Cart.AddItem(s.Ctx, 1, other.ID, 1)
	s.Require().NoError(err)

	book.Price = decimal.RequireFromString("11.00")
	s.Require().NoError(s.Catalog.SaveBook(s.Ctx, book))

	other.IsAvailable = false
	s.Require().NoError(s.Catalog.SaveBook(s.Ctx, other))

	view, err := s.Cart.Get(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.True(decimal.RequireFromString("22.00").Equal(view.TotalPrice))
	s.Equal(int32(2), view.TotalItems)

	// the next write drops the stale line for good
	_, err = s.Cart.UpdateItem(s.Ctx, 1, book.ID, 1)
	s.Require().NoError(err)

	var lines int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM cart_items WHERE user_id = 1`).Scan(&lines))
	s.Equal(1, lines)
}

func (s *IntegrationTestSuite) TestCart_Clear() {
	book := s.seedBook(10, "Dune", "10.00", 5)

	_, err := s.Cart.AddItem(s.Ctx, 1, book.ID, 2)
	s.Require().NoError(err)

	view, err := s.Cart.Clear(s.Ctx, 1)
	s.Require().NoError(err)
	s.Empty(view.Items)

	view, err = s.Cart.Get(s.Ctx, 1)
	s.Require().NoError(err)
	s.Empty(view.Items)

	_, err = s.Cart.AddItem(s.Ctx, 1, book.ID, 1)
	s.NoError(err)
}
