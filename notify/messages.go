package notify

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall/models"
)

func newNotification(userID, auctionID uuid.UUID, typ models.NotificationType, title, message string) models.Notification {
	return models.Notification{
		UserID:    userID,
		AuctionID: auctionID,
		Type:      typ,
		Title:     title,
		Message:   message,
	}
}

func AuctionWon(auction *models.Auction, winnerID uuid.UUID, amount decimal.Decimal) models.Notification {
	return newNotification(winnerID, auction.ID, models.NotificationAuctionWon,
		"Congratulations! You won the auction",
		fmt.Sprintf("You won \"%s\" for %s. Please complete the payment.", auction.Title, amount.StringFixed(2)))
}

func AuctionSold(auction *models.Auction, winnerUsername string, amount decimal.Decimal) models.Notification {
	return newNotification(auction.SellerID, auction.ID, models.NotificationAuctionEnded,
		"Auction Ended - Item Sold",
		fmt.Sprintf("\"%s\" was sold to %s for %s.", auction.Title, winnerUsername, amount.StringFixed(2)))
}

func AuctionNoBids(auction *models.Auction) models.Notification {
	return newNotification(auction.SellerID, auction.ID, models.NotificationAuctionEnded,
		"Auction Ended - No Bids",
		fmt.Sprintf("\"%s\" ended without any bids.", auction.Title))
}

func BidRefunded(auction *models.Auction, userID uuid.UUID, amount decimal.Decimal) models.Notification {
	return newNotification(userID, auction.ID, models.NotificationBidRefunded,
		"Bid Refunded",
		fmt.Sprintf("Your bid of %s on \"%s\" was refunded to your balance.", amount.StringFixed(2), auction.Title))
}

func Outbid(auction *models.Auction, userID uuid.UUID, amount decimal.Decimal) models.Notification {
	return newNotification(userID, auction.ID, models.NotificationOutbid,
		"You have been outbid",
		fmt.Sprintf("Someone bid %s on \"%s\".", amount.StringFixed(2), auction.Title))
}

func PaymentPending(pt *models.PaymentTransaction) models.Notification {
	return newNotification(pt.WinnerID, pt.AuctionID, models.NotificationPaymentPending,
		"Payment Pending",
		fmt.Sprintf("Please confirm the payment of %s held in escrow.", pt.Amount.StringFixed(2)))
}

func PaymentReceived(pt *models.PaymentTransaction) models.Notification {
	return newNotification(pt.SellerID, pt.AuctionID, models.NotificationPaymentReceived,
		"Payment Received",
		"The buyer has paid. Please ship the item.")
}

func ItemShipped(pt *models.PaymentTransaction, trackingNumber string) models.Notification {
	message := "Your item has been shipped."
	if trackingNumber != "" {
		message = fmt.Sprintf("Your item has been shipped. Tracking number: %s", trackingNumber)
	}
	return newNotification(pt.WinnerID, pt.AuctionID, models.NotificationItemShipped, "Item Shipped", message)
}

func ItemDelivered(pt *models.PaymentTransaction) models.Notification {
	return newNotification(pt.SellerID, pt.AuctionID, models.NotificationItemDelivered,
		"Item Delivered",
		"The buyer confirmed delivery.")
}

func PaymentReleased(pt *models.PaymentTransaction, sellerAmount decimal.Decimal) models.Notification {
	return newNotification(pt.SellerID, pt.AuctionID, models.NotificationPaymentReleased,
		"Payment Released",
		fmt.Sprintf("%s has been released to your balance.", sellerAmount.StringFixed(2)))
}

func PaymentRefunded(pt *models.PaymentTransaction) models.Notification {
	return newNotification(pt.WinnerID, pt.AuctionID, models.NotificationPaymentRefunded,
		"Payment Refunded",
		fmt.Sprintf("The transaction was cancelled and %s was refunded to your balance.", pt.Amount.StringFixed(2)))
}
