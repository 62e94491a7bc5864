package intake

// Reply is one outbound message. The transport decides how choices and links
// are rendered.
type Reply struct {
	Text string
	// Choices is a reply keyboard, one slice per row.
	Choices [][]string
	// Persistent keeps the keyboard open after a choice is made.
	Persistent     bool
	RemoveKeyboard bool
	Link           *LinkButton
}

type LinkButton struct {
	Text string
	URL  string
}

const (
	msgAccessDenied      = "Access denied for this chat."
	msgNewReport         = "New report. Choose <b>Unit</b>:"
	msgChooseUnit        = "Choose Unit: truck or trailer."
	msgEnterTruck        = "Enter <b>truck #</b>."
	msgEnterTrailer      = "Enter <b>trailer #</b>."
	msgInvalidNumber     = "Enter a valid number."
	msgLinkTruck         = "Truck # <b>connected with this trailer</b>?"
	msgEnterLinkTruck    = "Enter truck #."
	msgDescribeIssue     = "Describe the <b>issue</b> (Repair)."
	msgEnterIssue        = "Describe the issue in a few words."
	msgPaidBy            = "Paid by?"
	msgChoosePayer       = "Choose: driver or company."
	msgTotal             = "Total amount (e.g. 59.20)."
	msgInvalidTotal      = "Enter a valid number, e.g. 59.20"
	msgNotes             = "Notes (optional). Send text or '-' to skip."
	msgSendInvoice       = "Send invoice (photo or PDF)."
	msgWaitingForFile    = "Waiting for a photo or document. Send file."
	msgDashboard         = "Dashboard:"
	msgSaving            = "Saving..."
	msgSaved             = "Saved."
	msgNextAction        = "Choose next action:"
	msgUnsupportedFile   = "Unsupported file. Send a photo or a document (PDF/JPG/PNG)."
	msgFileInfoFailed    = "Failed to fetch file info from Telegram."
	msgDownloadFailed    = "Download failed: %s"
	msgNotConfigured     = "Config error: %s is not configured."
	msgSaveFailed        = "Error while saving invoice: %s"
	dashboardButtonLabel = "Open Dashboard"
)

func homeKeyboard(text string) Reply {
	return Reply{
		Text: text,
		Choices: [][]string{
			{"New report", "Dashboard"},
			{string(AssetTruck), string(AssetTrailer)},
		},
		Persistent: true,
	}
}

func payerKeyboard(text string) Reply {
	return Reply{Text: text, Choices: [][]string{{string(PayerDriver), string(PayerCompany)}}}
}

func plain(text string) Reply {
	return Reply{Text: text}
}

func withoutKeyboard(text string) Reply {
	return Reply{Text: text, RemoveKeyboard: true}
}
