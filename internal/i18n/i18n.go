// Package i18n holds the user-facing message catalog. Turkish is the default
// locale; English is the alternative. Message keys are the English text, so
// an English printer renders keys unchanged.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Default is the locale used when negotiation yields nothing better.
var Default = language.Turkish

// Supported lists the catalog locales; the first is the fallback.
var Supported = []language.Tag{language.Turkish, language.English}

var matcher = language.NewMatcher(Supported)

// Message keys.
const (
	MsgVerifyFieldsRequired = "Order number and email are required"
	MsgStoreNotFound        = "Store not found"
	MsgAuthorizationError   = "Authorization error"
	MsgOrderNotFound        = "Order not found"
	MsgEmailMismatch        = "Email does not match the order"
	MsgRefundExists         = "A refund request already exists for this order"
	MsgRequiredFields       = "Required fields are missing"
	MsgRefundCreated        = "Your refund request was created successfully"
	MsgSubmitFailed         = "An error occurred while creating the refund request"
	MsgVerifyFailed         = "An error occurred while verifying the order"
	MsgRefundNotFound       = "Refund request not found"
	MsgSessionNotFound      = "Session not found or expired"
	MsgInvalidStep          = "This step is not allowed now"
	MsgInvalidReason        = "Invalid refund reason"
	MsgImagesRequired       = "Photos are required for this reason"
	MsgNotImage             = "Only image files can be uploaded"
	MsgImageTooLarge        = "Each photo must be at most 5 MB"
	MsgTooManyImages        = "You can upload at most 5 photos"
	MsgMalformedImage       = "Invalid photo data"
	MsgTrackFailed          = "Refund information could not be retrieved"
	MsgRefundIDRequired     = "Refund tracking number is required"

	// Timeline and note text written at creation time.
	MsgTimelineManualCreated    = "Manual refund record created"
	MsgTimelineFromOrderCreated = "Refund record created from platform order"
	MsgTimelinePortalCreated    = "Customer created a refund request"
	MsgNoteCustomerPhotos       = "Customer uploaded %d photo(s)"
	MsgTimelinePhotosUploaded   = "%d photo(s) uploaded"
	MsgTimelineApproved         = "Refund approved and processed on the platform"
	MsgTimelineStatusChanged    = "Status changed from %s to %s"

	// Notifications.
	MsgMailNewRefundSubject = "New refund request for order %s"
	MsgMailNewRefundBody    = "A customer submitted a refund request for order %s. Reason: %s."
	MsgMailReceivedSubject  = "We received your refund request"
	MsgMailReceivedBody     = "Your refund request for order %s was received. Tracking code: %s"

	// Reason catalog.
	ReasonDamagedLabel         = "Damaged product"
	ReasonDamagedDescription   = "The product arrived damaged or broken"
	ReasonWrongLabel           = "Wrong product"
	ReasonWrongDescription     = "I did not receive the product I ordered"
	ReasonDefectiveLabel       = "Defective product"
	ReasonDefectiveDescription = "The product does not work or is defective"
	ReasonNotDescribedLabel    = "Not as described"
	ReasonNotDescribedDesc     = "The product does not match the description on the site"
	ReasonLateLabel            = "Late delivery"
	ReasonLateDescription      = "The product was delivered too late"
	ReasonCustomerLabel        = "Changed my mind"
	ReasonCustomerDescription  = "I do not want the product anymore"
	ReasonOtherLabel           = "Other"
	ReasonOtherDescription     = "Another reason"
)

var turkish = map[string]string{
	MsgVerifyFieldsRequired: "Sipariş numarası ve email adresi gerekli",
	MsgStoreNotFound:        "Mağaza bulunamadı",
	MsgAuthorizationError:   "Yetkilendirme hatası",
	MsgOrderNotFound:        "Sipariş bulunamadı",
	MsgEmailMismatch:        "Email adresi sipariş ile eşleşmiyor",
	MsgRefundExists:         "Bu sipariş için zaten bir iade talebi mevcut",
	MsgRequiredFields:       "Gerekli alanlar eksik",
	MsgRefundCreated:        "İade talebiniz başarıyla oluşturuldu",
	MsgSubmitFailed:         "İade talebi oluşturulurken bir hata oluştu",
	MsgVerifyFailed:         "Sipariş doğrulama sırasında bir hata oluştu",
	MsgRefundNotFound:       "İade talebi bulunamadı",
	MsgSessionNotFound:      "Oturum bulunamadı veya süresi doldu",
	MsgInvalidStep:          "Bu adım şu anda yapılamaz",
	MsgInvalidReason:        "Geçersiz iade nedeni",
	MsgImagesRequired:       "Bu neden için fotoğraf yüklemeniz gerekiyor",
	MsgNotImage:             "Sadece resim dosyaları yüklenebilir",
	MsgImageTooLarge:        "Her fotoğraf en fazla 5MB olabilir",
	MsgTooManyImages:        "En fazla 5 fotoğraf yükleyebilirsiniz",
	MsgMalformedImage:       "Geçersiz fotoğraf verisi",
	MsgTrackFailed:          "İade bilgileri alınamadı",
	MsgRefundIDRequired:     "İade takip numarası gerekli",

	MsgTimelineManualCreated:    "Manuel iade kaydı oluşturuldu",
	MsgTimelineFromOrderCreated: "İade kaydı platform siparişinden oluşturuldu",
	MsgTimelinePortalCreated:    "Müşteri iade talebi oluşturdu",
	MsgNoteCustomerPhotos:       "Müşteri %d adet fotoğraf yükledi",
	MsgTimelinePhotosUploaded:   "%d adet fotoğraf yüklendi",
	MsgTimelineApproved:         "İade onaylandı ve platformda işleme alındı",
	MsgTimelineStatusChanged:    "Durum %s → %s olarak değişti",

	MsgMailNewRefundSubject: "%s numaralı sipariş için yeni iade talebi",
	MsgMailNewRefundBody:    "Bir müşteri %s numaralı sipariş için iade talebi oluşturdu. Neden: %s.",
	MsgMailReceivedSubject:  "İade talebinizi aldık",
	MsgMailReceivedBody:     "%s numaralı siparişiniz için iade talebiniz alındı. Takip kodu: %s",

	ReasonDamagedLabel:         "Hasarlı Ürün",
	ReasonDamagedDescription:   "Ürün hasarlı veya kırık olarak geldi",
	ReasonWrongLabel:           "Yanlış Ürün",
	ReasonWrongDescription:     "Sipariş ettiğim ürün gelmedi",
	ReasonDefectiveLabel:       "Kusurlu Ürün",
	ReasonDefectiveDescription: "Ürün çalışmıyor veya kusurlu",
	ReasonNotDescribedLabel:    "Açıklamaya Uygun Değil",
	ReasonNotDescribedDesc:     "Ürün sitedeki açıklama ile uyuşmuyor",
	ReasonLateLabel:            "Geç Teslimat",
	ReasonLateDescription:      "Ürün çok geç teslim edildi",
	ReasonCustomerLabel:        "Fikrim Değişti",
	ReasonCustomerDescription:  "Ürünü istemiyorum, fikrim değişti",
	ReasonOtherLabel:           "Diğer",
	ReasonOtherDescription:     "Başka bir neden",
}

func init() {
	for key, msg := range turkish {
		if err := message.SetString(language.Turkish, key, msg); err != nil {
			panic(err)
		}
	}
}

// Negotiate picks the best supported locale for an Accept-Language value.
func Negotiate(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return Default
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	return Supported[idx]
}

// Printer returns a printer for tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// T renders key (with args) in tag.
func T(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}
