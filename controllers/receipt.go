package controllers

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-gomail/gomail"
	"github.com/jung-kurt/gofpdf"

	"github.com/prajwal01532/RideHubEsewa/models"
)

// GenerateBookingReceipt builds the PDF receipt for a paid booking
func GenerateBookingReceipt(booking models.Booking, payment models.Payment, user models.User) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 90, 60)
	pdf.CellFormat(0, 10, "RideHub - Vehicle Rental", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, "www.ridehub.com", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Payment Receipt", "1", 1, "C", false, 0, "")
	addReceiptDetail(pdf, "Receipt ID", payment.PaymentID, true)
	addReceiptDetail(pdf, "Renter", user.Name, true)
	addReceiptDetail(pdf, "Booking ID", fmt.Sprintf("%d", booking.BookingID), true)
	addReceiptDetail(pdf, "Vehicle", fmt.Sprintf("%s (%s)", booking.VehicleName, booking.VehicleType), true)
	addReceiptDetail(pdf, "From", booking.StartDate.Format("2006-01-02"), true)
	addReceiptDetail(pdf, "To", booking.EndDate.Format("2006-01-02"), true)

	pdf.CellFormat(0, 10, "Payment Details", "1", 1, "C", false, 0, "")
	addReceiptDetail(pdf, "Payment Method", payment.PaymentMethod, false)
	addReceiptDetail(pdf, "Status", payment.Status, false)
	if payment.TransactionID != "" {
		addReceiptDetail(pdf, "Transaction ID", payment.TransactionID, false)
	}
	if booking.RequiresDriver {
		addReceiptDetail(pdf, "Driver", "Included", false)
	}
	pdf.SetFont("Arial", "B", 13)
	addReceiptDetail(pdf, "Amount Paid", fmt.Sprintf("%.2f", payment.Amount), true)

	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, "Thank you for riding with us.", "", "L", false)

	pdf.SetY(pdf.GetY() + 12)
	pdf.CellFormat(0, 10, "This is a computer generated receipt", "", 1, "R", false, 0, "")

	var buffer bytes.Buffer
	if err := pdf.Output(&buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// addReceiptDetail adds a detail line to the PDF
func addReceiptDetail(pdf *gofpdf.Fpdf, label, value string, isHeader bool) {
	if isHeader {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(255, 255, 255)
	} else {
		pdf.SetFont("Arial", "", 10)
		pdf.SetFillColor(240, 240, 240)
	}
	pdf.CellFormat(45, 10, label, "1", 0, "", false, 0, "")
	pdf.CellFormat(0, 10, value, "1", 1, "", false, 0, "")
}

// SendReceiptEmail sends a confirmation email with the PDF receipt attached
func SendReceiptEmail(msg, email, attachmentName string, attachmentData []byte) error {
	senderEmail := os.Getenv("Email")
	senderPassword := os.Getenv("Password")
	if senderEmail == "" {
		return fmt.Errorf("mail sender not configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", senderEmail)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Payment Confirmation mail")
	m.SetBody("text/plain", msg)

	m.Attach(attachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(attachmentData)
		return err
	}))

	d := gomail.NewDialer("smtp.gmail.com", 587, senderEmail, senderPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	return nil
}
