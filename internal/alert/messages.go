package alert

import (
	"fmt"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/model"
)

const (
	procurementSubject = "Please deliver 40-VK to the cage between SECB and Flowers."
	stalenessSubject   = "ALERT: CO2 Bank Data Staleness"
)

// ProcurementMessage asks the supplier for two full cylinders. In test mode the
// message goes to the sender only.
func ProcurementMessage(creds *config.Credentials, bank model.Bank, signature string, test bool) Message {
	msg := Message{
		To:      []string{creds.SMTPRecipient},
		Cc:      []string{creds.SMTPSender},
		Subject: procurementSubject,
	}
	if test {
		msg.To = []string{creds.SMTPSender}
		msg.Cc = nil
	}
	msg.Body = fmt.Sprintf("Dear BOC team,\n\n"+
		"Please deliver 2x 40-VK cylinders to the cage space between SEC and FLOWERS building, SKEN. "+
		"To be charged on Service PO Number: %s.\n"+
		"Please collect the two empty cylinders on the %s bank.\n\n"+
		"Many thanks,\n%s", creds.PO, bank, signature)
	return msg
}

// StalenessMessage tells the operator that a bank has stopped reporting.
func StalenessMessage(creds *config.Credentials, bank model.Bank, daysOld int) Message {
	body := fmt.Sprintf("Dear Administrator,\n\n"+
		"The CO2 bank monitoring system has detected stale data for the %s bank.\n"+
		"The last data update was %d days ago.\n\n"+
		"This may indicate a connectivity issue with the Linde Digital Manifold system.\n"+
		"Please check the system connection and authentication.\n\n"+
		"This is an automated message from the CO2 Bank Monitoring System.", bank, daysOld)
	return Message{
		To:      []string{creds.SMTPSender},
		Subject: stalenessSubject,
		Body:    body,
	}
}
